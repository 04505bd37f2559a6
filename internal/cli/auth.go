package cli

import (
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Password sign in and token commands",
	}

	cmd.AddCommand(newAuthSignupCmd())
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthMeCmd())
	cmd.AddCommand(newAuthRefreshCmd())
	cmd.AddCommand(newAuthChangePasswordCmd())

	return cmd
}

func newAuthSignupCmd() *cobra.Command {
	var email, username, password, confirm string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm == "" {
				confirm = password
			}

			req := map[string]string{
				"email":           email,
				"username":        username,
				"password":        password,
				"confirmPassword": confirm,
			}
			var result AuthResult
			if err := client.Post(cmd.Context(), "/api/auth/signup", req, &result); err != nil {
				return err
			}

			saveToken(cmd, result.Token)
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Password confirmation (defaults to --password)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"email":    email,
				"password": password,
			}
			var result AuthResult
			if err := client.Post(cmd.Context(), "/api/auth/login", req, &result); err != nil {
				return err
			}

			saveToken(cmd, result.Token)
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result MessageResult
			if err := client.Post(cmd.Context(), "/api/auth/logout", nil, &result); err != nil {
				return err
			}

			if err := cfg.ClearToken(); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newAuthMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result UserResult
			if err := client.Get(cmd.Context(), "/api/auth/me", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the current token for a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result TokenResult
			if err := client.Post(cmd.Context(), "/api/auth/refresh", nil, &result); err != nil {
				return err
			}

			saveToken(cmd, result.Token)
			output(cmd).Print(result)
			return nil
		},
	}
}

func newAuthChangePasswordCmd() *cobra.Command {
	var current, next, confirm string

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the account password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm == "" {
				confirm = next
			}

			req := map[string]string{
				"currentPassword":    current,
				"newPassword":        next,
				"confirmNewPassword": confirm,
			}
			var result MessageResult
			if err := client.Post(cmd.Context(), "/api/auth/change-password", req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "Current password (required)")
	cmd.Flags().StringVar(&next, "new", "", "New password (required)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "New password confirmation (defaults to --new)")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("new")

	return cmd
}
