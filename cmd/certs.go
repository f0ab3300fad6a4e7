package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/entitled/internal/certstore"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Inspect and create certificates for signing and encryption",
}

var certsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the certificates found in the certificate directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		certDir, _ := cmd.Flags().GetString("cert-dir")

		certs, err := certstore.NewDirectoryStore(certDir, log.Logger)
		if err != nil {
			return fmt.Errorf("scanning certificate directory: %w", err)
		}

		found := certs.List()
		if len(found) == 0 {
			log.Info().Str("dir", certDir).Msg("No certificates found")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Subject", "Thumbprint (SHA-1)", "Expires", "Private Key"})

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintfFunc()

		for _, cert := range found {
			hasKey := faint("no")
			if cert.HasPrivateKey() {
				hasKey = bold("yes")
			}
			t.AppendRow(table.Row{
				cert.X509.Subject.CommonName,
				cert.Thumbprint(),
				cert.X509.NotAfter.Format(time.RFC3339),
				hasKey,
			})
		}

		s := table.StyleRounded
		s.Format.Header = text.FormatDefault
		t.SetStyle(s)
		t.Render()
		return nil
	},
}

var certsFindCmd = &cobra.Command{
	Use:   "find <thumbprint>",
	Short: "Find a certificate by thumbprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		certDir, _ := cmd.Flags().GetString("cert-dir")

		certs, err := certstore.NewDirectoryStore(certDir, log.Logger)
		if err != nil {
			return fmt.Errorf("scanning certificate directory: %w", err)
		}

		cert, err := certs.FindByThumbprint(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Subject:            %s\n", cert.X509.Subject.CommonName)
		fmt.Printf("Thumbprint (SHA-1): %s\n", cert.Thumbprint())
		fmt.Printf("Thumbprint (SHA-256): %s\n", cert.ThumbprintSHA256())
		fmt.Printf("Not before:         %s\n", cert.X509.NotBefore.Format(time.RFC3339))
		fmt.Printf("Not after:          %s\n", cert.X509.NotAfter.Format(time.RFC3339))
		fmt.Printf("Private key:        %t\n", cert.HasPrivateKey())
		return nil
	},
}

var certsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new self-signed certificate with a private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		commonName, _ := cmd.Flags().GetString("common-name")
		out, _ := cmd.Flags().GetString("out")
		validFor, _ := cmd.Flags().GetDuration("valid-for")

		cert, err := certstore.GenerateSelfSigned(commonName, validFor)
		if err != nil {
			return fmt.Errorf("generating certificate: %w", err)
		}
		if err := certstore.WritePEM(cert, out); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}

		color.Green("Certificate written to %s", out)
		fmt.Printf("Thumbprint (SHA-1): %s\n", cert.Thumbprint())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsListCmd)
	certsCmd.AddCommand(certsFindCmd)
	certsCmd.AddCommand(certsNewCmd)

	certsCmd.PersistentFlags().String("cert-dir", ".", "directory scanned for PEM certificates")

	certsNewCmd.Flags().String("common-name", "entitled", "common name of the new certificate")
	certsNewCmd.Flags().String("out", "entitled.pem", "output file for the certificate and key")
	certsNewCmd.Flags().Duration("valid-for", 365*24*time.Hour, "validity period of the certificate")
}
