package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/entitled/internal/api"
	"github.com/darmiel/entitled/internal/audit"
	"github.com/darmiel/entitled/internal/certstore"
	"github.com/darmiel/entitled/internal/codec"
	"github.com/darmiel/entitled/internal/config"
	"github.com/darmiel/entitled/internal/core"
	"github.com/darmiel/entitled/internal/service"
	"github.com/darmiel/entitled/internal/store"
	"github.com/darmiel/entitled/internal/verify"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the entitlement server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		log.Info().Str("dir", cfg.Certificates.Dir).Msg("Scanning certificate directory...")
		certs, err := certstore.NewDirectoryStore(cfg.Certificates.Dir, log.Logger)
		if err != nil {
			return fmt.Errorf("scanning certificate directory: %w", err)
		}

		tokenCodec, err := buildCodec(certs, cfg)
		if err != nil {
			return err
		}

		verifier, err := verify.New(tokenCodec, verify.WithLogger(log.Logger))
		if err != nil {
			return fmt.Errorf("building verifier: %w", err)
		}

		auditor, err := audit.Build(cfg.Audit)
		if err != nil {
			return fmt.Errorf("building auditor: %w", err)
		}
		defer func() {
			if err := auditor.Close(); err != nil {
				log.Error().Err(err).Msg("closing auditor")
			}
		}()

		svc := service.NewEntitlementService(verifier, store.NewEntitlementStore(), auditor)

		// a single-use trigger for exit-after-request mode
		shutdown := make(chan struct{})
		var shutdownOnce sync.Once
		requestShutdown := func() {
			shutdownOnce.Do(func() { close(shutdown) })
		}

		var serverOpts []api.ServerOption
		if cfg.Server.ExitAfterRequest {
			log.Warn().Msg("Server will exit after the first entitlement request")
			serverOpts = append(serverOpts, api.WithRequestHandledHook(requestShutdown))
		}

		srv := api.NewServer(svc, auditor, serverOpts...)

		server := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: srv.Routes([]byte(cfg.Admin.SigningKey)),
		}

		go func() {
			log.Info().Msgf("Starting server on %s...", cfg.Server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
		case <-shutdown:
		}
		log.Info().Msg("Shutting down server...")

		timeout := cfg.Server.ShutdownTimeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func buildCodec(certs *certstore.DirectoryStore, cfg *config.Config) (*codec.Codec, error) {
	signing, err := certs.FindByThumbprint(cfg.Certificates.SigningThumbprint)
	if err != nil {
		return nil, fmt.Errorf("finding signing certificate: %w", err)
	}
	log.Info().Str("thumbprint", signing.Thumbprint()).Msg("Using signing certificate")

	audience := cfg.Token.Audience
	if audience == "" {
		audience = core.DefaultAudience
	}
	issuer := cfg.Token.Issuer
	if issuer == "" {
		issuer = core.DefaultIssuer
	}

	opts := []codec.Option{
		codec.WithExpectedAudience(audience),
		codec.WithExpectedIssuer(issuer),
		codec.WithLogger(log.Logger),
	}

	if thumbprint := cfg.Certificates.EncryptionThumbprint; thumbprint != "" {
		encryption, err := certs.FindByThumbprint(thumbprint)
		if err != nil {
			return nil, fmt.Errorf("finding encryption certificate: %w", err)
		}
		if !encryption.HasPrivateKey() {
			return nil, fmt.Errorf("encryption certificate %s has no private key, cannot decrypt tokens",
				encryption.Thumbprint())
		}
		log.Info().Str("thumbprint", encryption.Thumbprint()).Msg("Using encryption certificate")
		opts = append(opts, codec.WithEncryptionCertificate(encryption))
	}

	return codec.New(signing, opts...)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("config", "entitled.yaml", "path to the server configuration file")
}
