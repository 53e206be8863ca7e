package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/apiclient"
	"folio/internal/clientsession"
	"folio/internal/profile"
)

func newSignInCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and save the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			if email == "" {
				return errors.New("--email is required")
			}
			password, err := readPassword(cmd)
			if err != nil {
				return err
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

			ctx, cancel := a.timeoutContext(cmd.Context())
			defer cancel()

			redirect, err := ctrl.SignIn(ctx, email, password)
			if err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			if err := a.tokens().Save(api.Token()); err != nil {
				return err
			}

			state := ctrl.Cache().Load()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "signed in as %s (%s)\n", state.Profile.Email, state.Profile.Role)
			fmt.Fprintf(w, "redirect: %s\n", redirect)
			return nil
		},
	}
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (prefer --password-stdin)")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	return cmd
}

func newSignOutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Revoke the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			if api.Token() == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			ctrl, closeCtrl, err := a.controller(api)
			if err != nil {
				return err
			}
			defer closeCtrl()

			ctx, cancel := a.timeoutContext(cmd.Context())
			defer cancel()

			// The token stays on disk when revocation fails so the user can retry.
			redirect, err := ctrl.SignOut(ctx)
			if err != nil {
				return fmt.Errorf("sign out: %w", err)
			}
			if err := a.tokens().Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed out\nredirect: %s\n", redirect)
			return nil
		},
	}
}

// errDenied is returned by whoami when the guard does not allow the route.
var errDenied = errors.New("access denied")

func newWhoAmICmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session and what it may access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			required, _ := cmd.Flags().GetString("role")
			var role profile.Role
			if required != "" {
				r, err := profile.ParseRole(required)
				if err != nil {
					return fmt.Errorf("role %q: %w", required, err)
				}
				role = r
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

			ctx, cancel := a.timeoutContext(cmd.Context())
			defer cancel()

			if err := ctrl.Start(ctx); err != nil {
				return err
			}
			if err := ctrl.LastError(); err != nil {
				return fmt.Errorf("resolving session: %w", err)
			}

			state := ctrl.Cache().Load()
			verdict := clientsession.Guard(state, role)
			printState(cmd.OutOrStdout(), state)
			fmt.Fprintf(cmd.OutOrStdout(), "verdict: %s\n", verdict)
			if verdict != clientsession.Allow {
				return errDenied
			}
			return nil
		},
	}
	cmd.Flags().String("role", "", "role the route requires (user or admin)")
	return cmd
}

func newResetPasswordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password EMAIL",
		Short: "Send a password recovery email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := a.timeoutContext(cmd.Context())
			defer cancel()

			if err := api.ResetPassword(ctx, args[0]); err != nil {
				return fmt.Errorf("reset password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "if the account exists, a recovery email is on its way")
			return nil
		},
	}
}

func newUpdatePasswordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-password",
		Short: "Change the password of the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			api, err := a.client()
			if err != nil {
				return err
			}
			if api.Token() == "" {
				return apiclient.ErrNoToken
			}
			ctx, cancel := a.timeoutContext(cmd.Context())
			defer cancel()

			if err := api.UpdatePassword(ctx, password); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "password updated")
			return nil
		},
	}
	cmd.Flags().String("password", "", "new password (prefer --password-stdin)")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	password, _ := cmd.Flags().GetString("password")
	switch {
	case fromStdin && password != "":
		return "", errors.New("--password and --password-stdin are mutually exclusive")
	case fromStdin:
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", errors.New("a password is required (--password or --password-stdin)")
	}
	return password, nil
}

func printState(w io.Writer, s clientsession.State) {
	if !s.SignedIn() {
		fmt.Fprintln(w, "not signed in")
		return
	}
	fmt.Fprintf(w, "email:   %s\n", s.Profile.Email)
	if s.Profile.FullName != "" {
		fmt.Fprintf(w, "name:    %s\n", s.Profile.FullName)
	}
	fmt.Fprintf(w, "role:    %s\n", s.Profile.Role)
	fmt.Fprintf(w, "active:  %t\n", s.Profile.IsActive)
	if s.Session != nil {
		fmt.Fprintf(w, "expires: %s\n", s.Session.ExpiresAt.Format("2006-01-02 15:04 MST"))
	}
}
