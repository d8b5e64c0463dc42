package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/briangreenhill/devkit/devkit"
	"github.com/briangreenhill/devkit/internal/config"
	"github.com/briangreenhill/devkit/rest"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flags shared by every subcommand
type app struct {
	rulesPath string
	httpCache bool
	debug     bool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "devkit",
		Short:         "Browse the photorank API from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.rulesPath, "rules", "", "pre-cache rules file (overrides DEVKIT_RULES)")
	root.PersistentFlags().BoolVar(&a.httpCache, "http-cache", false, "cache HTTP responses in memory")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "log pre-cache activity")

	root.AddCommand(
		newConnectCmd(a),
		newLookupCmd(a, "media <id>", "Show a media", func(ctx context.Context, s *devkit.Session, id string) (*devkit.Entity, error) {
			m, err := s.MediaByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return m.Entity, nil
		}),
		newLookupCmd(a, "stream <id>", "Show a stream", func(ctx context.Context, s *devkit.Session, id string) (*devkit.Entity, error) {
			st, err := s.StreamByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return st.Entity, nil
		}),
		newLookupCmd(a, "user <id>", "Show a user", func(ctx context.Context, s *devkit.Session, id string) (*devkit.Entity, error) {
			u, err := s.UserByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return u.Entity, nil
		}),
		newLookupCmd(a, "category <id>", "Show a category", func(ctx context.Context, s *devkit.Session, id string) (*devkit.Entity, error) {
			c, err := s.CategoryByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return c.Entity, nil
		}),
		newLookupCmd(a, "widget <hash>", "Show a widget instance", func(ctx context.Context, s *devkit.Session, hash string) (*devkit.Entity, error) {
			w, err := s.WidgetByHash(ctx, hash)
			if err != nil {
				return nil, err
			}
			return w.Entity, nil
		}),
		newFeedCmd(a),
		newUploaderCmd(a),
	)
	return root
}

// session opens a session from the environment and the global flags.
func (a *app) session(cmd *cobra.Command) (*devkit.Session, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if a.rulesPath != "" {
		cfg.RulesPath = a.rulesPath
	}
	cfg.Debug = cfg.Debug || a.debug
	cfg.HTTPCache = cfg.HTTPCache || a.httpCache
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		Level(level).With().Timestamp().Logger()

	opts := rest.DefaultOptions()
	opts.PreCacheEnabled = cfg.PreCache
	opts.Debug = cfg.Debug
	if cfg.RulesPath != "" {
		rules, err := config.LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, nil, err
		}
		if err := rules.Apply(&opts); err != nil {
			return nil, nil, fmt.Errorf("rules %s: %w", cfg.RulesPath, err)
		}
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.HTTPCache {
		httpClient.Transport = httpcache.NewMemoryCacheTransport()
	}

	s, err := devkit.New(cfg.APIKey,
		devkit.WithAPIURL(cfg.APIURL),
		devkit.WithAPIVersion(cfg.APIVersion),
		devkit.WithLogger(logger),
		devkit.WithRestClient(rest.New(
			rest.WithHTTPClient(httpClient),
			rest.WithLogger(logger),
			rest.WithOptions(opts),
		)),
	)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// run opens a session, calls fn under the configured timeout and prints
// its result as indented JSON.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, s *devkit.Session) (any, error)) error {
	s, cfg, err := a.session(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	v, err := fn(ctx, s)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [widget-instance]",
		Short: "Show the customer the API key belongs to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *devkit.Session) (any, error) {
				instance := ""
				if len(args) == 1 {
					instance = args[0]
				}
				c, w, err := s.Connect(ctx, instance)
				if err != nil {
					return nil, err
				}
				out := map[string]any{"customer": c.Data}
				if w != nil {
					out["widget"] = w.Data
				}
				return out, nil
			})
		},
	}
}

func newLookupCmd(a *app, use, short string, lookup func(ctx context.Context, s *devkit.Session, id string) (*devkit.Entity, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *devkit.Session) (any, error) {
				e, err := lookup(ctx, s, args[0])
				if err != nil {
					return nil, err
				}
				return e.Data, nil
			})
		},
	}
}

func newFeedCmd(a *app) *cobra.Command {
	var (
		sorting    string
		limit      int
		rightsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "feed <stream-id>",
		Short: "List the first page of a stream's media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *devkit.Session) (any, error) {
				st, err := s.StreamByID(ctx, args[0])
				if err != nil {
					return nil, err
				}
				media, err := devkit.NewMediaBatch(s, st.Entity, sorting, limit, rightsOnly).Fetch(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]map[string]any, 0, len(media))
				for _, m := range media {
					out = append(out, m.Data)
				}
				return out, nil
			})
		},
	}
	cmd.Flags().StringVar(&sorting, "sorting", "recent", "media list to page through")
	cmd.Flags().IntVar(&limit, "limit", 20, "media per page")
	cmd.Flags().BoolVar(&rightsOnly, "rights-only", false, "only media with rights granted")
	return cmd
}

func newUploaderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uploader <media-id>",
		Short: "Show who uploaded a media, and whether the pre-cache served it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, s *devkit.Session) (any, error) {
				m, err := s.MediaByID(ctx, args[0])
				if err != nil {
					return nil, err
				}
				link := m.Text("resources/uploader/link")
				if link == "" {
					return nil, devkit.ErrNoResource
				}
				resp, err := s.Rest().Get(ctx, link, nil, nil)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"cached": resp.Cached(),
					"entity": resp.Entity,
					"user":   resp.Data,
				}, nil
			})
		},
	}
}
