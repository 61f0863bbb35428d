package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-registry/internal/client"
	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/config"
	"github.com/ukydev/fleet-registry/internal/events"
	"github.com/ukydev/fleet-registry/internal/live"
	"golang.org/x/term"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List vehicles with their document status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		criteria, sortSpec, err := filtersFromFlags(cmd, cfg)
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("save-preset"); name != "" {
			if err := savePreset(cfg, name, criteria, sortSpec); err != nil {
				return err
			}
		}
		api, err := newAPI(cfg)
		if err != nil {
			return err
		}

		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		ctx, cancel := commandContext()
		defer cancel()
		result, err := api.FetchVehicles(ctx, client.Query{Criteria: criteria, Sort: sortSpec, Page: page, Limit: limit})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if err := renderRoster(out, result.Data, nil, time.Now(), compliance.NewClassifier(criteria.AlertDays)); err != nil {
			return err
		}
		renderPageFooter(out, result, limit)
		return nil
	},
}

func savePreset(cfg *config.ClientConfig, name string, c compliance.Criteria, s compliance.SortSpec) error {
	if cfg.Presets == nil {
		cfg.Presets = make(map[string]config.Preset)
	}
	cfg.Presets[name] = config.Preset{Criteria: c, Sort: s}
	if err := config.SaveClientConfig(configPath, cfg); err != nil {
		return fmt.Errorf("saving preset %q: %w", name, err)
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the roster live, marking new and updated vehicles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		criteria, sortSpec, err := filtersFromFlags(cmd, cfg)
		if err != nil {
			return err
		}
		api, err := newAPI(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()
		w := &watcher{
			api:      api,
			session:  live.NewSession(live.Options{}),
			criteria: criteria,
			sort:     sortSpec,
			out:      cmd.OutOrStdout(),
			clear:    term.IsTerminal(int(os.Stdout.Fd())),
		}
		defer w.session.Close()
		return w.run(ctx, events.NewWebSocketSource(cfg.WSURL, cfg.Token))
	},
}

// watcher redraws a filtered roster every time the session changes.
type watcher struct {
	api      *client.Client
	session  *live.Session
	criteria compliance.Criteria
	sort     compliance.SortSpec
	out      io.Writer
	clear    bool
	now      func() time.Time
}

// refetch replaces the roster with the server's. A fetch that finishes after
// a newer one started is discarded by the session.
func (w *watcher) refetch(ctx context.Context) error {
	token := w.session.BeginFetch()
	vehicles, err := w.api.FetchAll(ctx, client.Query{})
	if err != nil {
		return err
	}
	w.session.CompleteFetch(token, vehicles)
	return nil
}

func (w *watcher) run(ctx context.Context, src *events.WebSocketSource) error {
	if w.now == nil {
		w.now = time.Now
	}
	if err := w.refetch(ctx); err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}

	first := true
	src.OnConnect = func() {
		if first {
			first = false
			return
		}
		go func() {
			if err := w.refetch(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("Refetch after reconnect failed")
			}
		}()
	}
	src.OnDisconnect = func(err error) {
		log.WithError(err).Warn("Live updates interrupted, reconnecting")
	}

	stop, err := w.session.Follow(ctx, src)
	if err != nil {
		return fmt.Errorf("subscribing to live updates: %w", err)
	}
	defer stop()
	go w.session.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.session.Changes():
			if err := w.draw(); err != nil {
				return err
			}
		}
	}
}

func (w *watcher) draw() error {
	now := w.now()
	if w.clear {
		fmt.Fprint(w.out, "\033[H\033[2J")
	}
	visible := compliance.Apply(w.session.Snapshot(), w.criteria, w.sort, now)
	if err := renderRoster(w.out, visible, w.session.Highlights(), now, compliance.NewClassifier(w.criteria.AlertDays)); err != nil {
		return err
	}
	fmt.Fprintf(w.out, "\n%d vehicles shown, updated %s\n", len(visible), now.Format("15:04:05"))
	return nil
}
