// Command travelmate runs one travel-planning task end to end: it starts
// the local callback server, plans the trip, and streams events to stdout.
// When the task needs drive authorization, the printed authorization URL
// must be opened in a browser; the run resumes once the callback lands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shyam-menon/travelmate"
	"github.com/shyam-menon/travelmate/drive"
	"github.com/shyam-menon/travelmate/gateway"
	"github.com/shyam-menon/travelmate/identity"
	"github.com/shyam-menon/travelmate/internal/config"
	"github.com/shyam-menon/travelmate/observer"
	"github.com/shyam-menon/travelmate/provider/openaicompat"
	"github.com/shyam-menon/travelmate/store/sqlite"
	"github.com/shyam-menon/travelmate/travel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "travelmate:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfg := config.Load(os.Getenv("TRAVELMATE_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompt := strings.Join(os.Args[1:], " ")
	if prompt == "" {
		prompt = "Plan a 3-day trip to Rome and save the itinerary to my drive"
	}

	// 2. Observability (optional)
	var tracer travelmate.Tracer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("observer: %w", err)
		}
		defer shutdown(context.Background())
		tracer = observer.NewTracer()
	}

	// 3. Store
	store := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	// 4. Model and collaborators
	model := openaicompat.New(cfg.Model.APIKey, cfg.Model.Model, cfg.Model.BaseURL,
		openaicompat.WithLogger(logger))

	opts := []travel.Option{
		travel.WithStore(store),
		travel.WithUploader(drive.New(drive.WithLogger(logger))),
		travel.WithLogger(logger),
	}
	if cfg.Gateway.Endpoint != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.Gateway.ClientID,
			ClientSecret: cfg.Gateway.ClientSecret,
			TokenURL:     cfg.Gateway.TokenURL,
		}
		var gw travel.Gateway = gateway.New(cfg.Gateway.Endpoint, creds, gateway.WithLogger(logger))
		if inst != nil {
			gw = observer.WrapGateway(gw, inst)
		}
		opts = append(opts, travel.WithGateway(gw))
	}
	agent := travel.New(model, opts...)

	// 5. Authorization broker and callback server
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

	var completer travelmate.AuthorizationCompleter = broker
	var resolver travelmate.TokenResolver = broker
	if inst != nil {
		completer = observer.WrapCompleter(broker, inst)
		resolver = observer.WrapResolver(broker, inst)
	}

	cbOpts := []travelmate.CallbackOption{
		travelmate.CallbackLogger(logger),
		travelmate.CallbackCompleteTimeout(cfg.Callback.CompleteTimeout.Std()),
	}
	if tracer != nil {
		cbOpts = append(cbOpts, travelmate.CallbackTracer(tracer))
	}
	cb := travelmate.NewCallbackServer(completer, cbOpts...)
	if err := cb.Start(cfg.Callback.Addr); err != nil {
		return fmt.Errorf("callback server: %w", err)
	}
	defer cb.Shutdown(context.Background())
	logger.Info("callback server listening", "addr", cb.Addr())

	// 6. Run the task and stream events
	runnerOpts := []travelmate.RunnerOption{
		travelmate.RunnerLogger(logger),
		travelmate.RunnerProvider(cfg.Identity.Provider, cfg.Identity.Scopes...),
	}
	if tracer != nil {
		runnerOpts = append(runnerOpts, travelmate.RunnerTracer(tracer))
	}
	runner := travelmate.NewRunner(agent, resolver, runnerOpts...)
	var tasks observer.TaskRunner = runner
	if inst != nil {
		tasks = observer.WrapRunner(runner, inst)
	}

	handle := tasks.Run(ctx, travelmate.Task{Prompt: prompt, UserID: "local"})
	for ev := range handle.Events().Stream(ctx) {
		switch ev.Type {
		case travelmate.EventAuthURL:
			fmt.Printf("\nOpen this URL in your browser to authorize:\n  %s\n\n", ev.Text)
		case travelmate.EventEnd:
			fmt.Println("\n[done]")
		default:
			fmt.Println(ev.Text)
		}
	}
	return handle.Err()
}
