package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jlym/minix/internal/app"
	"github.com/jlym/minix/internal/session"
)

// sessionError turns provider failures into the message shown to the user.
func sessionError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", session.Message(err))
}

func (c *cli) accountCommands() []*cobra.Command {
	signUp := c.withApp(func(ctx context.Context, a *app.App, args []string) error {
		account, err := a.Session.SignUp(ctx, args[0], strings.Join(args[2:], " "), args[1])
		if err != nil {
			return sessionError(err)
		}
		fmt.Printf("registered %s as %q, sign in to continue\n", account.Email, account.DisplayName)
		return nil
	})

	return []*cobra.Command{
		{
			Use:   "signup <email> <password> [display name]",
			Short: "Register a Gmail account",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				// Rejected before the backend is opened.
				if !session.IsValidGmail(args[0]) {
					return sessionError(&session.Error{Reason: session.ReasonNotGmail})
				}
				return signUp(cmd, args)
			},
		},
		{
			Use:   "signin <email> <password>",
			Short: "Sign in and remember the session",
			Args:  cobra.ExactArgs(2),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				identity, err := a.Session.SignIn(ctx, args[0], args[1])
				if err != nil {
					return sessionError(err)
				}
				fmt.Printf("signed in as %s\n", identity)
				return nil
			}),
		},
		{
			Use:   "signout",
			Short: "Forget the stored session",
			Args:  cobra.NoArgs,
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				return sessionError(a.SignOut(ctx))
			}),
		},
		{
			Use:   "reset-password <email>",
			Short: "Send a password reset token",
			Args:  cobra.ExactArgs(1),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				if err := a.Session.ResetPassword(ctx, args[0]); err != nil {
					return sessionError(err)
				}
				fmt.Println("reset instructions sent")
				return nil
			}),
		},
		{
			Use:   "confirm-reset <token> <new password>",
			Short: "Set a new password with a reset token",
			Args:  cobra.ExactArgs(2),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				if err := a.Session.ConfirmPasswordReset(ctx, args[0], args[1]); err != nil {
					return sessionError(err)
				}
				fmt.Println("password updated")
				return nil
			}),
		},
		{
			Use:   "whoami",
			Short: "Show the signed in account",
			Args:  cobra.NoArgs,
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				account, err := a.Session.CurrentAccount(ctx)
				if err != nil {
					return sessionError(err)
				}
				fmt.Printf("%s\t%s\t%s\n", account.AccountID, account.Email, account.DisplayName)
				return nil
			}),
		},
		{
			Use:   "rename <display name>",
			Short: "Change your display name",
			Args:  cobra.MinimumNArgs(1),
			RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
				account, err := a.Rename(ctx, strings.Join(args, " "))
				if err != nil {
					return sessionError(err)
				}
				fmt.Printf("display name is now %q\n", account.DisplayName)
				return nil
			}),
		},
	}
}
