package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Profile, statistics and leaderboard commands",
	}

	cmd.AddCommand(newUserProfileCmd())
	cmd.AddCommand(newUserUpdateProfileCmd())
	cmd.AddCommand(newUserDeactivateCmd())
	cmd.AddCommand(newUserStatsCmd())
	cmd.AddCommand(newUserUpdateStatsCmd())
	cmd.AddCommand(newUserSessionStartCmd())
	cmd.AddCommand(newUserLeaderboardCmd())

	return cmd
}

func newUserProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the signed in profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result UserResult
			if err := client.Get(cmd.Context(), "/api/user/profile", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newUserUpdateProfileCmd() *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:   "update-profile",
		Short: "Change username or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{}
			if cmd.Flags().Changed("username") {
				req["username"] = username
			}
			if cmd.Flags().Changed("email") {
				req["email"] = email
			}
			if len(req) == 0 {
				return fmt.Errorf("at least one of --username or --email is required")
			}

			var result UserResult
			if err := client.Put(cmd.Context(), "/api/user/profile", req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "New username")
	cmd.Flags().StringVar(&email, "email", "", "New email address")

	return cmd
}

func newUserDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate the signed in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result MessageResult
			if err := client.Delete(cmd.Context(), "/api/user/profile", &result); err != nil {
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

func newUserStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show game statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result StatsResult
			if err := client.Get(cmd.Context(), "/api/user/stats", &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newUserUpdateStatsCmd() *cobra.Command {
	var playTime, games, highScore int64

	cmd := &cobra.Command{
		Use:   "update-stats",
		Short: "Submit game statistics",
		Long: `Submit game statistics. Play time and games played overwrite the
stored values; a high score only replaces the stored one when it is higher.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]int64{}
			if cmd.Flags().Changed("play-time") {
				req["totalPlayTime"] = playTime
			}
			if cmd.Flags().Changed("games") {
				req["gamesPlayed"] = games
			}
			if cmd.Flags().Changed("high-score") {
				req["highScore"] = highScore
			}

			var result StatsUpdateResult
			if err := client.Put(cmd.Context(), "/api/user/stats", req, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().Int64Var(&playTime, "play-time", 0, "Total play time in seconds")
	cmd.Flags().Int64Var(&games, "games", 0, "Games played")
	cmd.Flags().Int64Var(&highScore, "high-score", 0, "High score")

	return cmd
}

func newUserSessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-start",
		Short: "Record the start of a game session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result SessionResult
			if err := client.Post(cmd.Context(), "/api/user/session-start", nil, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}
}

func newUserLeaderboardCmd() *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the high score leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if page > 0 {
				q.Set("page", strconv.Itoa(page))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			path := "/api/user/leaderboard"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var result LeaderboardResult
			if err := client.Get(cmd.Context(), path, &result); err != nil {
				return err
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "Page number (default 1)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Entries per page (default 10, max 100)")

	return cmd
}
