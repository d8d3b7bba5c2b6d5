// Command dewrun is a minimal demonstration host: it spawns a root task
// that forks a child, sleeps, sends the child one inbox message, then
// awaits the child.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rsms/dew-sub000"
)

func main() {
	sched, err := dew.NewScheduler(dew.WithLogger(dew.NewLogger(slog.NewTextHandler(os.Stderr, nil))))
	if err != nil {
		fmt.Fprintln(os.Stderr, "new scheduler:", err)
		os.Exit(1)
	}

	_, err = sched.Spawn(0, func(c *dew.Context) error {
		childID, err := c.Spawn(func(c *dew.Context) error {
			msg, err := c.Recv()
			if err != nil {
				return err
			}
			fmt.Printf("child received: %v\n", msg.Body)
			return nil
		})
		if err != nil {
			return err
		}

		if err := c.Sleep(10 * time.Millisecond); err != nil {
			return err
		}
		if err := c.Send(context.Background(), childID, "hello from root"); err != nil {
			return err
		}
		_, err = c.Await(childID)
		return err
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "spawn:", err)
		os.Exit(1)
	}

	if err := sched.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "run:", err)
		os.Exit(1)
	}
}
