package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a device token for the SMS forwarder",
	Long:  `Issue a signed bearer token that a phone's SMS forwarder uses to post messages for one user.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := setup()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if tokenUserID == "" {
			fmt.Fprintln(os.Stderr, "--user-id is required")
			os.Exit(1)
		}

		service := auth.NewService(
			auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration),
			cfg.Security.AccessTokenDuration,
		)
		issued, err := service.IssueDeviceToken(tokenUserID, tokenEmail, tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(issued.Token)
		fmt.Fprintf(os.Stderr, "user=%s expires=%s\n", issued.UserID, issued.ExpiresAt.Format(time.RFC3339))
	},
}

var (
	tokenUserID string
	tokenEmail  string
	tokenTTL    time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "user the token authenticates")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "optional email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to security.access_token_duration)")
}
