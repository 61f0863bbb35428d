package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs <vehicle-id>",
	Short: "Show a vehicle's documents and their status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		api, err := newAPI(cfg)
		if err != nil {
			return err
		}
		days, _ := cmd.Flags().GetInt("dias")
		if days <= 0 {
			days = cfg.AlertDays
		}

		ctx, cancel := commandContext()
		defer cancel()
		view, err := api.Documents(ctx, args[0], days)
		if err != nil {
			return err
		}
		return renderDocuments(cmd.OutOrStdout(), view)
	},
}

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Work with a single document",
}

var docURLCmd = &cobra.Command{
	Use:   "url <document-id>",
	Short: "Print a short-lived link to a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		api, err := newAPI(cfg)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		link, err := api.DocumentURL(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), link.URL)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", link.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

var docDownloadCmd = &cobra.Command{
	Use:   "download <document-id>",
	Short: "Save a document's file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		api, err := newAPI(cfg)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		tmp, err := os.CreateTemp(".", ".fleetwatch-download-*")
		if err != nil {
			return fmt.Errorf("creating download file: %w", err)
		}
		defer os.Remove(tmp.Name())

		ctx, cancel := commandContext()
		defer cancel()
		name, err := api.DownloadDocument(ctx, args[0], tmp)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}

		target := downloadTarget(output, name, args[0])
		if err := os.Rename(tmp.Name(), target); err != nil {
			return fmt.Errorf("saving %s: %w", target, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", target)
		return nil
	},
}

// downloadTarget picks the output path: the flag, then the server's file name
// stripped of directories, then the document id.
func downloadTarget(output, serverName, documentID string) string {
	if output != "" {
		return output
	}
	if base := filepath.Base(serverName); serverName != "" && base != "." && base != "/" && base != ".." {
		return base
	}
	return documentID
}
