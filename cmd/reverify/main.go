package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"bobinator/internal/app"
	"bobinator/internal/platform/config"
	"bobinator/internal/platform/database"
	"bobinator/internal/platform/logger"
	"bobinator/internal/seeder"
	"bobinator/internal/verification/registry/cache"
	"bobinator/internal/verification/registry/providers"
	"bobinator/internal/verification/registry/providers/client"
	"bobinator/internal/verification/registry/search"
	"bobinator/internal/verification/workers/reverify"
	"bobinator/pkg/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "reverify",
		Usage: "Re-verify contractor credentials against state registries",
		Commands: []*cli.Command{
			runCommand(),
			watchCommand(),
			lookupCommand(),
			searchCommand(),
			migrateCommand(),
			seedCommand(),
		},
		Action: runAll,
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Verify every provider once and print a report",
		Flags:  []cli.Flag{concurrencyFlag()},
		Action: runAll,
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-verify every provider on a fixed interval until interrupted",
		Flags: []cli.Flag{
			concurrencyFlag(),
			&cli.DurationFlag{Name: "interval", Usage: "time between runs (default REVERIFY_INTERVAL)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log := loadConfig(c)
			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // process is exiting

			interval := cfg.Reverify.Interval
			if c.IsSet("interval") {
				interval = c.Duration("interval")
			}
			w, err := reverify.New(a.Batch, reverify.WithInterval(interval), reverify.WithLogger(log))
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func runAll(ctx context.Context, c *cli.Command) error {
	cfg, log := loadConfig(c)
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // process is exiting

	report, err := a.Batch.VerifyAll(ctx)
	printReport(c.Root().Writer, report)
	if err != nil {
		return fmt.Errorf("re-verification interrupted after %d providers: %w", len(report), err)
	}
	return nil
}

func lookupCommand() *cli.Command {
	return &cli.Command{
		Name:  "lookup",
		Usage: "Look up one license in a state registry without storing the result",
		Flags: []cli.Flag{
			jurisdictionFlag(),
			&cli.StringFlag{Name: "number", Aliases: []string{"n"}, Required: true, Usage: "license number"},
			&cli.IntFlag{Name: "retries", Value: client.DefaultMaxRetries, Usage: "retries for transient registry failures"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log := loadConfig(c)
			cfg.Registry.MaxRetries = c.Int("retries")
			svc, j, err := registrySearch(cfg, log, c.String("jurisdiction"))
			if err != nil {
				return err
			}

			res, err := svc.Lookup(ctx, j, c.String("number"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.Root().Writer, res)
			}
			printLookup(c.Root().Writer, res)
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search a state registry by name",
		Flags: []cli.Flag{
			jurisdictionFlag(),
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Required: true, Usage: "name or company to search for"},
			&cli.IntFlag{Name: "limit", Value: validation.DefaultSearchLimit, Usage: "maximum results"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log := loadConfig(c)
			svc, j, err := registrySearch(cfg, log, c.String("jurisdiction"))
			if err != nil {
				return err
			}

			hits, err := svc.Search(ctx, j, c.String("query"), c.Int("limit"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.Root().Writer, hits)
			}
			printHits(c.Root().Writer, hits)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log := loadConfig(c)
			pool, err := database.New(ctx, database.DefaultConfig(cfg.Database.URL))
			if err != nil {
				return err
			}
			if pool == nil {
				return fmt.Errorf("DATABASE_URL is required for migrate")
			}
			defer pool.Close() //nolint:errcheck // process is exiting

			if err := database.Migrate(ctx, pool.DB()); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create the demo providers",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log := loadConfig(c)
			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // process is exiting

			res, err := seeder.New(a.Store, log).SeedAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Created %d providers, skipped %d existing.\n", res.Created, res.Skipped)
			return nil
		},
	}
}

func concurrencyFlag() cli.Flag {
	return &cli.IntFlag{Name: "concurrency", Usage: "providers verified in parallel (default REVERIFY_CONCURRENCY)"}
}

func jurisdictionFlag() cli.Flag {
	return &cli.StringFlag{Name: "jurisdiction", Aliases: []string{"j"}, Value: string(providers.JurisdictionVA), Usage: "VA or NC"}
}

// loadConfig reads the environment and applies flag overrides. Logs go to
// stderr so the report on stdout stays clean.
func loadConfig(c *cli.Command) (config.Config, *slog.Logger) {
	cfg := config.FromEnv()
	if c.IsSet("concurrency") {
		cfg.Reverify.Concurrency = c.Int("concurrency")
	}
	return cfg, logger.NewWithWriter(os.Stderr, cfg.LogLevel)
}

func registrySearch(cfg config.Config, log *slog.Logger, rawJurisdiction string) (*search.Service, providers.Jurisdiction, error) {
	j, ok := providers.ParseJurisdiction(rawJurisdiction)
	if !ok {
		return nil, "", fmt.Errorf("unsupported jurisdiction %q", rawJurisdiction)
	}
	registry, err := app.BuildRegistry(cfg.Registry, log, nil)
	if err != nil {
		return nil, "", err
	}
	return search.New(registry, cache.NewMemory(cfg.SearchCache.TTL), search.WithLogger(log)), j, nil
}
