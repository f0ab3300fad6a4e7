package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/entitled/internal/core"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative commands against a running server",
}

var adminTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin session token",
	Long: `Mints a session token for the server's admin endpoints, signed with the
same key the server was configured with (admin.signing_key). Keep the key
out of your shell history; prefer the ENTITLED_ADMIN_KEY environment
variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		roles, _ := cmd.Flags().GetStringSlice("roles")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if key == "" {
			key = os.Getenv("ENTITLED_ADMIN_KEY")
		}
		if key == "" {
			return fmt.Errorf("signing key required, provide via --key or ENTITLED_ADMIN_KEY")
		}

		now := time.Now()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"roles": roles,
			"iat":   now.Unix(),
			"exp":   now.Add(ttl).Unix(),
		})
		signed, err := token.SignedString([]byte(key))
		if err != nil {
			return fmt.Errorf("signing session token: %w", err)
		}

		fmt.Println(signed)
		return nil
	},
}

var adminEntitlementsCmd = &cobra.Command{
	Use:   "entitlements",
	Short: "List all entitlement records the server knows about",
	Example: `  entitled admin entitlements --server http://localhost:8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Fetching entitlement records...")
		records, correlation, err := cli.ListEntitlements(cmd.Context())
		if err != nil {
			log.Debug().Str("correlation_id", correlation).Msg("request failed")
			return err
		}

		if len(records) == 0 {
			log.Info().Msg("No entitlement records found")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"ID", "Application", "State", "Acquired", "Expires", "Renewals",
		})

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintfFunc()

		for _, rec := range records {
			state := bold(string(rec.State))
			if rec.State != core.StateActive {
				state = faint(string(rec.State))
			}
			t.AppendRow(table.Row{
				truncate(rec.ID, 48),
				rec.Properties.ApplicationID,
				state,
				rec.AcquiredAt.Format(time.RFC3339),
				rec.ExpiresAt.Format(time.RFC3339),
				len(rec.RenewedAt),
			})
		}

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

var adminAuditsCmd = &cobra.Command{
	Use:   "audits",
	Short: "List the most recent audit entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetUint("limit")

		cli, err := getClient()
		if err != nil {
			return err
		}

		log.Debug().Msg("Fetching audit entries...")
		entries, correlation, err := cli.ListAudits(cmd.Context(), limit)
		if err != nil {
			log.Debug().Str("correlation_id", correlation).Msg("request failed")
			return err
		}

		if len(entries) == 0 {
			log.Info().Msg("No audit entries found")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Time", "Action", "Application", "Entitlement", "Granted", "Error",
		})

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintfFunc()

		for _, entry := range entries {
			granted := faint("no")
			if entry.Granted {
				granted = bold("yes")
			}
			t.AppendRow(table.Row{
				entry.Time.Format(time.RFC3339),
				entry.Action,
				entry.ApplicationID,
				truncate(entry.EntitlementID, 48),
				granted,
				truncate(entry.Error, 64),
			})
		}

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminTokenCmd)
	adminCmd.AddCommand(adminEntitlementsCmd)
	adminCmd.AddCommand(adminAuditsCmd)

	adminTokenCmd.Flags().String("key", "", "HMAC signing key shared with the server")
	adminTokenCmd.Flags().StringSlice("roles", []string{"admin"}, "roles to embed in the session token")
	adminTokenCmd.Flags().Duration("ttl", 24*time.Hour, "lifetime of the session token")

	adminAuditsCmd.Flags().Uint("limit", 50, "maximum number of entries to fetch")
}
