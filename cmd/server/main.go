package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/oidcware/go-id-server/authz"
	"github.com/oidcware/go-id-server/clients"
	"github.com/oidcware/go-id-server/consent"
	"github.com/oidcware/go-id-server/internal/config"
	"github.com/oidcware/go-id-server/server"
	"github.com/oidcware/go-id-server/sessions"
	"github.com/oidcware/go-id-server/token"
	"github.com/oidcware/go-id-server/users"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	displayAppname(cfg.GetAppName())

	keySet, err := buildKeySet(cfg)
	if err != nil {
		return fmt.Errorf("buildKeySet: %w", err)
	}

	clientList, err := server.DefaultClients()
	if err != nil {
		return fmt.Errorf("server.DefaultClients: %w", err)
	}
	registry, err := clients.NewRegistry(clientList)
	if err != nil {
		return fmt.Errorf("clients.NewRegistry: %w", err)
	}

	userStore := users.NewInMemoryStore()
	if err := server.SeedUserStore(userStore); err != nil {
		return fmt.Errorf("server.SeedUserStore: %w", err)
	}

	issuer, err := token.NewIssuer(
		cfg.GetBaseURL(),
		keySet,
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetIDTokenExpiry()),
		token.WithMaxTokenLifetime(cfg.GetMaxTokenLifetime()),
	)
	if err != nil {
		return fmt.Errorf("token.NewIssuer: %w", err)
	}

	authService, err := authz.NewAuthorizationService(authz.Deps{
		Clients: registry,
		Users:   userStore,
		Consent: consent.NewInMemoryLedger(),
		Issuer:  issuer,
	})
	if err != nil {
		return fmt.Errorf("authz.NewAuthorizationService: %w", err)
	}

	handler, err := server.New(cfg, server.Deps{
		Auth:     authService,
		Registry: registry,
		Sessions: sessions.NewAuthenticator(sessions.WithLifetime(cfg.GetSessionLifetime())),
		Keys:     keySet,
	})
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: cfg.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// buildKeySet loads the signing key from configuration, or generates a
// fresh RSA key when none is configured. The key set lives for the
// whole process; rotation installs a new key without invalidating
// tokens signed by the old one.
func buildKeySet(cfg config.Config) (*token.KeySet, error) {
	keyID := uuid.New().String()
	if pemData := cfg.GetSigningKeyPEM(); pemData != "" {
		keyPair, err := token.LoadKeyPairFromPEM(keyID, pemData)
		if err != nil {
			return nil, fmt.Errorf("token.LoadKeyPairFromPEM: %w", err)
		}
		return token.NewKeySet(token.NewKeyPairSigner(keyPair)), nil
	}

	keyPair, err := token.GenerateRSAKeyPair(keyID, 2048)
	if err != nil {
		return nil, fmt.Errorf("token.GenerateRSAKeyPair: %w", err)
	}
	return token.NewKeySet(token.NewKeyPairSigner(keyPair)), nil
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
