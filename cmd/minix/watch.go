package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jlym/minix/internal/app"
	"github.com/jlym/minix/internal/events"
)

func (c *cli) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print feed activity as it happens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			a, err := app.New(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Events == nil {
				return errors.New("MINIX_NATS_URL was empty or unreachable")
			}

			sub, err := a.Events.Subscribe(c.logger, func(event *events.Event) {
				fmt.Printf("%s  %s  actor=%s post=%s comment=%s target=%s\n",
					event.Timestamp.Local().Format(time.DateTime),
					event.Type,
					event.ActorID,
					event.PostID,
					event.CommentID,
					event.TargetUserID,
				)
			})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
}
