package cmd

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/entitled/internal/certstore"
	"github.com/darmiel/entitled/internal/codec"
	"github.com/darmiel/entitled/internal/core"
)

// generateCmd mints a new software entitlement token.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a software entitlement token",
	Long: `Generates a signed (and optionally encrypted) software entitlement token
for the given application(s). The token is written to stdout unless a token
file is specified.`,
	Example: `  entitled generate --application-id contosoHR --vmid vm-007 --sign <thumbprint>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applications, _ := cmd.Flags().GetStringSlice("application-id")
		vmid, _ := cmd.Flags().GetString("vmid")
		rawAddresses, _ := cmd.Flags().GetStringSlice("address")
		notBeforeStr, _ := cmd.Flags().GetString("not-before")
		notAfterStr, _ := cmd.Flags().GetString("not-after")
		audience, _ := cmd.Flags().GetString("audience")
		issuer, _ := cmd.Flags().GetString("issuer")
		signThumbprint, _ := cmd.Flags().GetString("sign")
		encryptThumbprint, _ := cmd.Flags().GetString("encrypt")
		certDir, _ := cmd.Flags().GetString("cert-dir")
		tokenFile, _ := cmd.Flags().GetString("token-file")

		now := time.Now().UTC()
		notBefore, err := parseInstant(notBeforeStr, now)
		if err != nil {
			return fmt.Errorf("parsing --not-before: %w", err)
		}
		notAfter, err := parseInstant(notAfterStr, notBefore.Add(7*24*time.Hour))
		if err != nil {
			return fmt.Errorf("parsing --not-after: %w", err)
		}

		addresses := make([]netip.Addr, 0, len(rawAddresses))
		for _, raw := range rawAddresses {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return fmt.Errorf("parsing --address %q: %w", raw, err)
			}
			addresses = append(addresses, addr)
		}

		certs, err := certstore.NewDirectoryStore(certDir, log.Logger)
		if err != nil {
			return fmt.Errorf("scanning certificate directory: %w", err)
		}

		signing, err := certs.FindByThumbprint(signThumbprint)
		if err != nil {
			return fmt.Errorf("finding signing certificate: %w", err)
		}
		if !signing.HasPrivateKey() {
			return fmt.Errorf("signing certificate %s has no private key", signing.Thumbprint())
		}

		opts := []codec.Option{codec.WithLogger(log.Logger)}
		if encryptThumbprint != "" {
			encryption, err := certs.FindByThumbprint(encryptThumbprint)
			if err != nil {
				return fmt.Errorf("finding encryption certificate: %w", err)
			}
			opts = append(opts, codec.WithEncryptionCertificate(encryption))
		}

		tokenCodec, err := codec.New(signing, opts...)
		if err != nil {
			return err
		}

		raw, err := tokenCodec.Encode(core.EntitlementToken{
			ID:               uuid.NewString(),
			Issuer:           issuer,
			Audience:         audience,
			NotBefore:        notBefore,
			NotAfter:         notAfter,
			IssuedAt:         now,
			Applications:     applications,
			IPAddresses:      addresses,
			VirtualMachineID: vmid,
		})
		if err != nil {
			return fmt.Errorf("minting token: %w", err)
		}

		if tokenFile != "" {
			if err := os.WriteFile(tokenFile, []byte(raw), 0600); err != nil {
				return fmt.Errorf("writing token file: %w", err)
			}
			color.Green("Token written to %s", tokenFile)
			return nil
		}

		fmt.Println(raw)
		return nil
	},
}

// parseInstant reads an RFC3339 timestamp, falling back to the given default
// when the flag is empty.
func parseInstant(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringSlice("application-id", nil,
		"unique identifier(s) for the application(s) to include in the entitlement")
	generateCmd.Flags().String("vmid", "",
		"unique identifier for the virtual machine")
	generateCmd.Flags().StringSlice("address", nil,
		"IP address(es) of the machine entitled to run the application(s); empty leaves the token unrestricted")
	generateCmd.Flags().String("not-before", "",
		"moment at which the token becomes active (RFC3339, defaults to now)")
	generateCmd.Flags().String("not-after", "",
		"moment at which the token expires (RFC3339, defaults to 7 days after not-before)")
	generateCmd.Flags().String("audience", core.DefaultAudience,
		"audience to which the token is addressed")
	generateCmd.Flags().String("issuer", core.DefaultIssuer,
		"issuer claim for the token")
	generateCmd.Flags().String("sign", "",
		"thumbprint of the certificate used to sign the token")
	generateCmd.Flags().String("encrypt", "",
		"thumbprint of the certificate used to encrypt the token")
	generateCmd.Flags().String("cert-dir", ".",
		"directory scanned for PEM certificates")
	generateCmd.Flags().StringP("token-file", "f", "",
		"file into which the token is written (stdout otherwise)")

	_ = generateCmd.MarkFlagRequired("application-id")
	_ = generateCmd.MarkFlagRequired("sign")
}
