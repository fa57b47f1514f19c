// Command callback-server runs the local authorization callback listener
// on its own, for setups where the agent process and the browser-facing
// listener are started separately. Tokens posted to /token are exchanged
// through the identity broker when the browser hits /callback.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/oauth2"

	"github.com/shyam-menon/travelmate"
	"github.com/shyam-menon/travelmate/identity"
	"github.com/shyam-menon/travelmate/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "callback-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load(os.Getenv("TRAVELMATE_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Identity.ClientID,
		ClientSecret: cfg.Identity.ClientSecret,
		RedirectURL:  cfg.Identity.RedirectURL,
		Scopes:       cfg.Identity.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Identity.AuthorizeURL,
			TokenURL: cfg.Identity.TokenURL,
		},
	}
	broker := identity.NewBroker(cfg.Identity.AuthorizeURL, cfg.Identity.RedirectURL,
		identity.WithExchange(identity.OAuth2Exchange(oauthCfg)),
		identity.WithWaitTimeout(cfg.Identity.WaitTimeout.Std()),
		identity.WithLogger(logger))

	cb := travelmate.NewCallbackServer(broker,
		travelmate.CallbackLogger(logger),
		travelmate.CallbackCompleteTimeout(cfg.Callback.CompleteTimeout.Std()))
	if err := cb.Start(cfg.Callback.Addr); err != nil {
		return err
	}
	logger.Info("callback server listening", "addr", cb.Addr())

	<-ctx.Done()
	return cb.Shutdown(context.Background())
}
