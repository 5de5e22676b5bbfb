package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"workinbox/internal/app"
	"workinbox/internal/config"
	"workinbox/internal/db"
	"workinbox/internal/domain"
	"workinbox/internal/inbox"
	"workinbox/internal/provider"
	"workinbox/internal/repo"
	"workinbox/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wi",
	Short: "Unified work inbox",
	Long: `wi gathers pending purchase orders, invoices, amendments and contracts into one
ranked queue of work items.
- Sources: the built-in sample dataset, the workspace store (.workinbox/inbox.db, filled with 'wi import'), or a snapshot file.
- Scoring: category, risk, amount, urgency and evidence weights come from inbox.yml ('wi config init').
- Event log: every import and clear is recorded, view with 'wi log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.LoadEnv(viper.GetString("workspace"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WORKINBOX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (defaults to <workspace>/inbox.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(storeCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func inboxCmd() *cobra.Command {
	var categories []string
	var minRisk string
	var limit int
	var explain bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show the ranked work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(categories, minRisk, limit)
			if err != nil {
				return err
			}
			return withAggregator(cmd, func(ctx context.Context, agg inbox.Aggregator) error {
				res, err := agg.Collect(ctx, nil)
				if err != nil {
					return err
				}
				for _, d := range res.Diagnostics {
					fmt.Fprintf(os.Stderr, "warning: %s adapter failed: %s\n", d.Adapter, d.Message)
				}
				items := q.Apply(res.Items)
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"items":       items,
						"diagnostics": res.Diagnostics,
						"stats":       res.Stats,
					})
				}
				var scorer *inbox.Scorer
				if explain {
					s := inbox.NewScorer(agg.Config.Weights)
					scorer = &s
				}
				renderInbox(os.Stdout, items, scorer)
				return nil
			})
		},
	}
	addSourceFlags(cmd)
	cmd.Flags().StringSliceVar(&categories, "category", nil, "categories to keep (repeatable)")
	cmd.Flags().StringVar(&minRisk, "min-risk", "", "lowest risk level to keep")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of items")
	cmd.Flags().BoolVar(&explain, "explain", false, "show the score breakdown")
	return cmd
}

func importCmd() *cobra.Command {
	var domainName, file, snapshot string
	var replace bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import raw records into the workspace store",
		Long:  "Import a list of records for one domain (--domain with --file) or a whole snapshot keyed by domain (--snapshot). Records are upserted by id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			batches, err := readImport(domainName, file, snapshot)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				actor := viper.GetString("actor-id")
				var summaries []repo.ImportSummary
				for _, name := range domain.Domains {
					recs, ok := batches[name]
					if !ok {
						continue
					}
					if replace {
						if _, err := r.ClearDomain(ctx, name, actor); err != nil {
							return err
						}
					}
					s, err := r.ImportRecords(ctx, name, recs, actor)
					if err != nil {
						return err
					}
					summaries = append(summaries, s)
				}
				if viper.GetBool("json") {
					return printJSON(summaries)
				}
				for _, s := range summaries {
					fmt.Printf("imported %d %s (batch %s", s.Imported, s.Domain, s.BatchID)
					if s.Anonymous > 0 {
						fmt.Printf(", %d without id", s.Anonymous)
					}
					fmt.Println(")")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&domainName, "domain", "", "domain of --file records ("+strings.Join(domain.Domains, ", ")+")")
	cmd.Flags().StringVar(&file, "file", "", "YAML or JSON list of records")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "YAML or JSON snapshot keyed by domain")
	cmd.Flags().BoolVar(&replace, "replace", false, "clear each imported domain first")
	return cmd
}

// readImport returns the records to import keyed by domain.
func readImport(domainName, file, snapshot string) (map[string][]domain.Record, error) {
	switch {
	case file != "" && snapshot != "":
		return nil, fmt.Errorf("use either --file or --snapshot")
	case snapshot != "":
		b, err := provider.ReadSnapshot(snapshot)
		if err != nil {
			return nil, err
		}
		out := map[string][]domain.Record{}
		for _, name := range domain.Domains {
			if recs := b.Collection(name); recs != nil {
				out[name] = recs
			}
		}
		return out, nil
	case file != "":
		if !domain.IsDomain(domainName) {
			return nil, fmt.Errorf("--domain must be one of %s", strings.Join(domain.Domains, ", "))
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		recs, err := provider.ParseRecords(data, strings.EqualFold(filepath.Ext(file), ".json"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		return map[string][]domain.Record{domainName: recs}, nil
	}
	return nil, fmt.Errorf("--file or --snapshot required")
}

func storeCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "store",
		Short: "Inspect the workspace record store",
	}
	st.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count stored records per domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				counts, err := r.CountRecords(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Domain", "Records"})
				for _, name := range domain.Domains {
					tw.AppendRow(table.Row{name, counts[name]})
				}
				tw.Render()
				return nil
			})
		},
	})
	var domainName string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored records of a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				n, err := r.ClearDomain(ctx, domainName, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"domain": domainName, "deleted": n})
				}
				fmt.Printf("deleted %d %s\n", n, domainName)
				return nil
			})
		},
	}
	clearCmd.Flags().StringVar(&domainName, "domain", "", "domain to clear")
	st.AddCommand(clearCmd)
	return st
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect scoring config",
		Long:  "Config is inbox.yml in the workspace: category and risk weights, amount and urgency curves, thresholds, windows and extra status aliases. Missing sections keep their defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				msg := ""
				if err != nil {
					msg = err.Error()
				}
				return printJSON(map[string]any{"ok": err == nil, "error": msg})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default inbox.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of store changes: imports and clears with their batch ids and counts.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAggregator(cmd, func(ctx context.Context, agg inbox.Aggregator) error {
				if addr == "" {
					addr = agg.Config.Server.Addr
				}
				if basePath == "" {
					basePath = agg.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{Aggregator: agg, BasePath: basePath, Logger: agg.Logger})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				agg.Logger.Info("serving work inbox API",
					slog.String("url", "http://"+addr+basePath),
					slog.String("source", flagOrEnv(cmd, "source")),
				)
				fmt.Printf("Serving work inbox API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	addSourceFlags(cmd)
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level := viper.GetString("log-level")
	if level == "" {
		level = cfg.Log.Level
	}
	format := viper.GetString("log-format")
	if format == "" {
		format = cfg.Log.Format
	}
	return app.NewLogger(os.Stderr, level, format)
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", app.SourceSample, "record source (sample, store, file); env WORKINBOX_SOURCE")
	cmd.Flags().String("file", "", "snapshot file for --source file; env WORKINBOX_FILE")
}

// flagOrEnv prefers an explicit flag, then the WORKINBOX_ env value, then
// the flag default.
func flagOrEnv(cmd *cobra.Command, name string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return viper.GetString(name)
	}
	if !f.Changed {
		if v := viper.GetString(name); v != "" {
			return v
		}
	}
	return f.Value.String()
}

func withAggregator(cmd *cobra.Command, fn func(context.Context, inbox.Aggregator) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	p, closeProvider, err := app.NewProvider(ctx, flagOrEnv(cmd, "source"), viper.GetString("workspace"), flagOrEnv(cmd, "file"))
	if err != nil {
		return err
	}
	defer closeProvider()
	return fn(ctx, app.NewAggregator(cfg, p, logger))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	conn, err := app.OpenStore(ctx, workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
