package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sbnz-social/modguard/moderation/seed"
	"github.com/sbnz-social/modguard/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "modguard",
		Usage:   "abuse detection and suspension daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string for users (and events/suspensions, if redis is not configured); in-process memory if empty",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MODGUARD_MAX_DB_CONNECTIONS", "MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for events, suspensions and caching",
			EnvVars: []string{"MODGUARD_REDIS_URL", "REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "how long user and suspension lookups are cached",
			Value:   30 * time.Second,
			EnvVars: []string{"MODGUARD_CACHE_TTL"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"MODGUARD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (text or json)",
			EnvVars: []string{"MODGUARD_LOG_FMT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		sweepCmd,
		seedCmd,
		resetCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

func configStorage(cctx *cli.Context, logger *slog.Logger) StorageConfig {
	return StorageConfig{
		Logger:           logger,
		DatabaseURL:      cctx.String("database-url"),
		MaxDBConnections: cctx.Int("max-db-connections"),
		RedisURL:         cctx.String("redis-url"),
		CacheTTL:         cctx.Duration("cache-ttl"),
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the moderation HTTP service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for HTTP APIs",
			Value:   ":3999",
			EnvVars: []string{"MODGUARD_BIND"},
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "bearer token required for admin endpoints; admin endpoints are disabled if empty",
			EnvVars: []string{"MODGUARD_ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "Slack incoming webhook URL for suspension notifications",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.DurationFlag{
			Name:    "trigger-interval",
			Usage:   "minimum time between detection passes scheduled by user actions",
			Value:   30 * time.Second,
			EnvVars: []string{"MODGUARD_TRIGGER_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "detection-concurrency",
			Usage:   "number of users read in parallel during a detection pass",
			Value:   8,
			EnvVars: []string{"MODGUARD_DETECTION_CONCURRENCY"},
		},
		&cli.Float64Flag{
			Name:    "detection-read-rate",
			Usage:   "max per-user storage reads per second during a pass (0 for unlimited)",
			EnvVars: []string{"MODGUARD_DETECTION_READ_RATE"},
		},
		&cli.BoolFlag{
			Name:    "seed-demo",
			Usage:   "register demo users with backdated suspicious activity on startup",
			EnvVars: []string{"MODGUARD_SEED_DEMO"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		defer configOTEL("modguard")()

		srv, err := NewServer(Config{
			StorageConfig:   configStorage(cctx, logger),
			Bind:            cctx.String("bind"),
			AdminToken:      cctx.String("admin-token"),
			SlackWebhookURL: cctx.String("slack-webhook-url"),
			TriggerInterval: cctx.Duration("trigger-interval"),
			Concurrency:     cctx.Int("detection-concurrency"),
			ReadRate:        cctx.Float64("detection-read-rate"),
		})
		if err != nil {
			return err
		}

		if cctx.Bool("seed-demo") {
			seeded, err := seed.SuspiciousUsers(ctx, srv.stores.Users, srv.stores.Events, time.Now())
			if err != nil {
				return fmt.Errorf("seeding demo users: %w", err)
			}
			logger.Info("seeded demo users", "count", len(seeded))
		}

		return srv.RunAPI()
	},
}

var sweepCmd = &cli.Command{
	Name:  "sweep",
	Usage: "run one detection pass now and print the resulting flags as JSON",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		svc, _, err := NewModerationService(configStorage(cctx, logger), ServiceOptions{})
		if err != nil {
			return err
		}
		defer svc.Close()

		flags, err := svc.RunDetectionPass(ctx)
		if err != nil {
			return err
		}
		out := make([]flagOut, 0, len(flags))
		for _, f := range flags {
			out = append(out, newFlagOut(f))
		}
		return printJSON(out)
	},
}

var seedCmd = &cli.Command{
	Name:  "seed",
	Usage: "register demo users with backdated suspicious activity",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		_, stores, err := NewModerationService(configStorage(cctx, logger), ServiceOptions{})
		if err != nil {
			return err
		}
		seeded, err := seed.SuspiciousUsers(ctx, stores.Users, stores.Events, time.Now())
		if err != nil {
			return err
		}
		for _, su := range seeded {
			fmt.Printf("%s\t%s\t%s\n", su.User.ID, su.User.Email, su.Scenario.Name)
		}
		return nil
	},
}

var resetCmd = &cli.Command{
	Name:  "reset",
	Usage: "delete all recorded report and block events (suspensions and flag history are kept)",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "confirm deletion",
		},
	},
	Action: func(cctx *cli.Context) error {
		if !cctx.Bool("yes") {
			return fmt.Errorf("refusing to delete events without --yes")
		}
		logger, err := configLogger(cctx)
		if err != nil {
			return err
		}
		svc, _, err := NewModerationService(configStorage(cctx, logger), ServiceOptions{})
		if err != nil {
			return err
		}
		if err := svc.ClearEvents(context.Background()); err != nil {
			return err
		}
		logger.Info("cleared moderation events")
		return nil
	},
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
