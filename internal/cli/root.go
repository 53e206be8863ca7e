// Package cli contains the folioctl commands. They drive a folio server over
// its HTTP API through the same client session controller a browser shell
// would use.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"folio/internal/apiclient"
	"folio/internal/clientsession"
	"folio/internal/events"
	"folio/internal/logger"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	version string
	cfg     *Config
	logger  *slog.Logger
}

// NewRootCommand builds the folioctl command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:   "folioctl",
		Short: "Command-line client for a folio server",
		Long: `folioctl signs in to a folio server and inspects the resulting session.

Example usage:
  folioctl signin --email ada@example.com --password-stdin
  folioctl whoami --role admin   # Check whether the session may open /admin
  folioctl watch                 # Print session changes as they happen
  folioctl signout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is .folioctl.yaml)")
	root.PersistentFlags().String("server", "", "folio server URL (env FOLIO_SERVER)")
	root.PersistentFlags().String("token-file", "", "where the session token is kept")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	root.AddCommand(
		newSignInCmd(a),
		newSignOutCmd(a),
		newWhoAmICmd(a),
		newResetPasswordCmd(a),
		newUpdatePasswordCmd(a),
		newWatchCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	a.logger = logger.NewText(os.Stderr, level)
	a.logger.Debug("configuration loaded", "server", cfg.Server, "token_file", cfg.TokenFile)
	return nil
}

func (a *app) tokens() tokenStore {
	return tokenStore{path: a.cfg.TokenFile}
}

// client returns an API client holding the saved token, if any.
func (a *app) client() (*apiclient.Client, error) {
	token, err := a.tokens().Load()
	if err != nil {
		return nil, err
	}
	return apiclient.New(apiclient.Config{
		BaseURL:    a.cfg.Server,
		CookieName: a.cfg.CookieName,
		Token:      token,
		Timeout:    a.cfg.Timeout,
	})
}

// bus returns the notification bus for the session controller. Without a
// Redis URL changes stay local to this process.
func (a *app) bus() (events.Bus, func(), error) {
	if a.cfg.RedisURL == "" {
		return events.NewBroadcaster(), func() {}, nil
	}
	rb, err := events.NewRedisBusFromURL(a.cfg.RedisURL, a.cfg.EventsChannel, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rb, func() { _ = rb.Close() }, nil
}

// controller wires a session controller to api and the configured bus.
func (a *app) controller(api clientsession.API) (*clientsession.Controller, func(), error) {
	bus, closeBus, err := a.bus()
	if err != nil {
		return nil, nil, err
	}
	c := clientsession.NewController(api, bus, clientsession.NewCache(), a.logger)
	return c, func() {
		c.Close()
		closeBus()
	}, nil
}

func (a *app) timeoutContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.Timeout)
}
