// Command fleetwatch is a terminal client for the fleet registry: it lists
// vehicles with their document compliance and follows live changes.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-registry/internal/client"
	"github.com/ukydev/fleet-registry/internal/config"
	"golang.org/x/term"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// commandContext ends on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig reads the client config, falling back to defaults.
func loadConfig() (*config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newAPI creates an API client from the config. A token is required.
func newAPI(cfg *config.ClientConfig) (*client.Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("not logged in: run 'fleetwatch login' first")
	}
	return client.New(cfg.APIURL, cfg.Token), nil
}

var rootCmd = &cobra.Command{
	Use:           "fleetwatch",
	Short:         "Fleet document compliance from the terminal",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := "warn"
		if verbose {
			level = "debug"
		}
		return config.SetupLogger(log.StandardLogger(), level, "text")
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if apiURL, _ := cmd.Flags().GetString("api-url"); apiURL != "" {
			cfg.APIURL = apiURL
		}
		if wsURL, _ := cmd.Flags().GetString("ws-url"); wsURL != "" {
			cfg.WSURL = wsURL
		}

		username, _ := cmd.Flags().GetString("username")
		if username == "" {
			fmt.Fprint(cmd.OutOrStdout(), "Username: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading username: %w", err)
			}
			username = strings.TrimSpace(line)
		}
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()
		api := client.New(cfg.APIURL, "")
		resp, err := api.Login(ctx, username, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg.Token = resp.Token
		if err := config.SaveClientConfig(configPath, cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", resp.User.Username, resp.User.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Token = ""
		return config.SaveClientConfig(configPath, cfg)
	},
}

// readPassword takes the password from FLEETWATCH_PASSWORD or prompts
// without echo on a terminal.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw := os.Getenv("FLEETWATCH_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for a password: set FLEETWATCH_PASSWORD")
	}
	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultClientConfigPath(), "path to the client config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")

	loginCmd.Flags().StringP("username", "u", "", "account username")
	loginCmd.Flags().String("api-url", "", "API base URL to store in the config")
	loginCmd.Flags().String("ws-url", "", "push channel URL to store in the config")
	rootCmd.AddCommand(loginCmd, logoutCmd)

	addFilterFlags(listCmd)
	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("limit", 20, "vehicles per page")
	listCmd.Flags().String("save-preset", "", "store the given filters under this preset name")
	rootCmd.AddCommand(listCmd)

	addFilterFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)

	docsCmd.Flags().Int("dias", 0, "alert threshold in days (default from config)")
	rootCmd.AddCommand(docsCmd)

	docDownloadCmd.Flags().StringP("output", "o", "", "output file (default: the server's file name)")
	docCmd.AddCommand(docURLCmd, docDownloadCmd)
	rootCmd.AddCommand(docCmd)
}
