package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/clientsession"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print session changes until interrupted",
		Long: `watch resolves the saved session and prints every change to it. Changes
arrive from the notification bus (Redis when --redis or FOLIO_REDIS_URL is
set) and from a periodic re-check against the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}

			api, err := a.client()
			if err != nil {
				return err
			}
			ctrl, closeCtrl, err := a.controller(api)
			if err != nil {
				return err
			}
			defer closeCtrl()

			w := cmd.OutOrStdout()
			var mu sync.Mutex
			last := "unset"
			stop := ctrl.Cache().Watch(func(s clientsession.State) {
				if s.IsLoading {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if key := stateKey(s); key != last {
					last = key
					fmt.Fprintf(w, "[%s] ", time.Now().Format(time.TimeOnly))
					printState(w, s)
				}
			})
			defer stop()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := ctrl.Start(ctx); err != nil {
				return err
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					ctrl.Refresh(ctx)
					if err := ctrl.LastError(); err != nil {
						a.logger.Warn("session check failed", "error", err)
					}
				}
			}
		},
	}
	cmd.Flags().Duration("interval", time.Minute, "how often to re-check the session")
	cmd.Flags().String("redis", "", "Redis URL for cross-process session events (env FOLIO_REDIS_URL)")
	return cmd
}

// stateKey identifies the parts of a state worth reporting a change for.
func stateKey(s clientsession.State) string {
	if !s.SignedIn() {
		return ""
	}
	return fmt.Sprintf("%s/%s/%t", s.Identity.ID, s.Profile.Role, s.Profile.IsActive)
}
