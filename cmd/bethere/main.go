// Command bethere runs the BeThere attendance API, its job worker and the
// maintenance tasks that share their configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bethere:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "bethere",
		Usage: "event attendance with geofenced check-in",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading the environment when it exists",
			},
		},
		Before: func(c *cli.Context) error {
			return loadEnvFile(c.String("env-file"))
		},
		Commands: []*cli.Command{
			serveCommand(),
			workerCommand(),
			sweepCommand(),
			migrateCommand(),
			seedAdminCommand(),
		},
	}
}

// loadEnvFile applies path without overriding variables already set. A
// missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
