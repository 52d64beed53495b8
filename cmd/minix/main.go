package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/jlym/minix/internal/app"
	"github.com/jlym/minix/internal/config"
)

const commandTimeout = 30 * time.Second

// cli holds state shared by every command.
type cli struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "minix",
		Short:         "A small social feed client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.envFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = app.NewLogger(cfg)
			slog.SetDefault(c.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "env file to load before reading the environment")

	root.AddCommand(c.dbCommand())
	root.AddCommand(c.accountCommands()...)
	root.AddCommand(c.feedCommands()...)
	root.AddCommand(c.watchCommand())
	return root
}

// withApp builds the App, restores the stored session and runs fn with a
// bounded context.
func (c *cli) withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		a, err := app.New(ctx, c.cfg, c.logger)
		if err != nil {
			return err
		}
		defer a.Close()

		a.Restore(ctx)
		return fn(ctx, a, args)
	}
}

// interruptContext is cancelled on Ctrl-C, for long running commands.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt)
}
