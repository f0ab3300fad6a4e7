package cmd

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/entitled/internal/certstore"
	"github.com/darmiel/entitled/internal/codec"
	"github.com/darmiel/entitled/internal/core"
	"github.com/darmiel/entitled/internal/errorset"
	"github.com/darmiel/entitled/internal/verify"
)

// verifyCmd checks a token locally, without a running server. Unlike the
// server's denial responses, this prints every failed check because the
// operator holding the certificates is entitled to the details.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a software entitlement token locally",
	Example: `  entitled verify --token-file token.txt --application contosoHR --sign <thumbprint>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawToken, _ := cmd.Flags().GetString("token")
		tokenFile, _ := cmd.Flags().GetString("token-file")
		application, _ := cmd.Flags().GetString("application")
		rawAddress, _ := cmd.Flags().GetString("address")
		audience, _ := cmd.Flags().GetString("audience")
		issuer, _ := cmd.Flags().GetString("issuer")
		signThumbprint, _ := cmd.Flags().GetString("sign")
		encryptThumbprint, _ := cmd.Flags().GetString("encrypt")
		certDir, _ := cmd.Flags().GetString("cert-dir")

		if rawToken == "" && tokenFile == "" {
			return fmt.Errorf("either --token or --token-file is required")
		}
		if rawToken == "" {
			content, err := os.ReadFile(tokenFile)
			if err != nil {
				return fmt.Errorf("reading token file: %w", err)
			}
			rawToken = strings.TrimSpace(string(content))
		}

		address := netip.Addr{}
		if rawAddress != "" {
			parsed, err := netip.ParseAddr(rawAddress)
			if err != nil {
				return fmt.Errorf("parsing --address %q: %w", rawAddress, err)
			}
			address = parsed
		}

		certs, err := certstore.NewDirectoryStore(certDir, log.Logger)
		if err != nil {
			return fmt.Errorf("scanning certificate directory: %w", err)
		}
		signing, err := certs.FindByThumbprint(signThumbprint)
		if err != nil {
			return fmt.Errorf("finding signing certificate: %w", err)
		}

		opts := []codec.Option{
			codec.WithExpectedAudience(audience),
			codec.WithExpectedIssuer(issuer),
			codec.WithLogger(log.Logger),
		}
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
		verifier, err := verify.New(tokenCodec, verify.WithLogger(log.Logger))
		if err != nil {
			return err
		}

		properties, err := verifier.Verify(core.TokenVerificationRequest{
			ApplicationID: application,
			IPAddress:     address,
		}, rawToken)
		if err != nil {
			color.Red("Token rejected:")
			var errs errorset.ErrorSet
			if errors.As(err, &errs) {
				for _, msg := range errs {
					fmt.Printf("  - %s\n", msg)
				}
			} else {
				fmt.Printf("  - %s\n", err)
			}
			return fmt.Errorf("token rejected")
		}

		color.Green("Token grants entitlement for %s", properties.ApplicationID)
		if properties.VirtualMachineID != "" {
			fmt.Printf("  vmid:    %s\n", properties.VirtualMachineID)
		}
		fmt.Printf("  expires: %s\n", properties.NotAfter.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("token", "", "the raw token to verify")
	verifyCmd.Flags().String("token-file", "", "file holding the token to verify")
	verifyCmd.Flags().String("application", "", "application to check the entitlement for")
	verifyCmd.Flags().String("address", "", "source address to check the entitlement for")
	verifyCmd.Flags().String("audience", core.DefaultAudience, "expected token audience")
	verifyCmd.Flags().String("issuer", core.DefaultIssuer, "expected token issuer")
	verifyCmd.Flags().String("sign", "", "thumbprint of the certificate used to verify the signature")
	verifyCmd.Flags().String("encrypt", "", "thumbprint of the certificate used to decrypt the token")
	verifyCmd.Flags().String("cert-dir", ".", "directory scanned for PEM certificates")

	_ = verifyCmd.MarkFlagRequired("application")
	_ = verifyCmd.MarkFlagRequired("sign")
}
