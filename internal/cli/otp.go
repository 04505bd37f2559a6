package cli

import (
	"github.com/spf13/cobra"
)

func newOTPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otp",
		Short: "One-time code sign in",
	}

	cmd.AddCommand(newOTPSendCmd())
	cmd.AddCommand(newOTPVerifyCmd())

	return cmd
}

func newOTPSendCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Request a one-time code by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result OTPSendResult
			if err := client.Post(cmd.Context(), "/api/otp/send", map[string]string{"email": email}, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newOTPVerifyCmd() *cobra.Command {
	var email, code, username string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a one-time code",
		Long: `Verify a one-time code. For a new email address the first call
without --username confirms the code; repeat it with --username to create
the account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"email": email,
				"otp":   code,
			}
			if username != "" {
				req["username"] = username
			}

			var result OTPVerifyResult
			if err := client.Post(cmd.Context(), "/api/otp/verify", req, &result); err != nil {
				return err
			}

			saveToken(cmd, result.Token)
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&code, "code", "", "Six digit code (required)")
	cmd.Flags().StringVar(&username, "username", "", "Username for a new account")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}
