package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nuru484/BeThere-server/internal/application"
	"github.com/nuru484/BeThere-server/internal/config"
)

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "schedule tomorrow's sessions and recover missed ones, then exit",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.services().driver.Sweep(c.Context)
			fmt.Fprintf(c.App.Writer, "scanned %d events: %d scheduled, %d recovered, %d invalid, %d failed\n",
				result.Scanned, result.Scheduled, result.Recovered, result.Invalid, result.Failed)
			return err
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply pending schema migrations",
		Action: func(c *cli.Context) error {
			// bootstrap migrates before returning
			rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()
			rt.logger.Info("database schema is up to date", "driver", rt.cfg.DatabaseDriver)
			return nil
		},
	}
}

func seedAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed-admin",
		Usage: "create or refresh the administrator account from ADMIN_* variables",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context, config.AdminKeys...)
			if err != nil {
				return err
			}
			defer rt.close()

			admin := rt.cfg.Admin
			user, err := rt.services().users.SeedAdmin(c.Context, application.SeedAdminParams{
				Email:     admin.Email,
				Password:  admin.Password,
				FirstName: admin.FirstName,
				LastName:  admin.LastName,
				Phone:     admin.Phone,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "administrator %s ready (id %s)\n", user.Email, user.ID)
			return nil
		},
	}
}
