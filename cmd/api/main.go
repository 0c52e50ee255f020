package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/firstaidvox/gateway/internal/config"
	"github.com/firstaidvox/gateway/internal/handler"
	"github.com/firstaidvox/gateway/internal/service/agent"
	"github.com/firstaidvox/gateway/internal/service/conversation"
	"github.com/firstaidvox/gateway/internal/service/places"
	"github.com/firstaidvox/gateway/internal/service/speech"
	"github.com/firstaidvox/gateway/internal/service/triage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	convs := conversation.NewService(conversation.StagePolicy{MaxExchanges: cfg.Triage.MaxExchanges})

	// Pick the assessor: a local model when credentials are present, the
	// remote backend otherwise.
	var assessor triage.Assessor
	var agentSvc *agent.Service
	switch {
	case cfg.Agent.Enabled():
		agentSvc, err = agent.NewService(ctx, cfg.Agent)
		if err != nil {
			log.Fatalf("failed to initialize triage agent: %v", err)
		}
		assessor = agentSvc
		log.Println("triage agent initialized with local model")
	case cfg.Upstream.Enabled():
		assessor = triage.NewRemoteClient(cfg.Upstream)
		log.Printf("triage agent using remote backend at %s", cfg.Upstream.BaseURL)
	default:
		log.Fatal("no assessor configured: set ARK_API_KEY + AGENT_MODEL or UPSTREAM_BASE_URL")
	}

	var finder triage.FacilityFinder
	if cfg.Maps.Enabled {
		placesSvc, err := places.NewService(cfg.Maps.APIKey, cfg.Maps.RadiusKm)
		if err != nil {
			log.Printf("warning: failed to initialize places service: %v", err)
		} else {
			finder = placesSvc
			log.Println("places service initialized")
		}
	} else {
		log.Println("maps credentials not configured, hospital search disabled")
	}

	var speechSvc *speech.Service
	if cfg.Speech.Enabled {
		speechSvc = speech.NewService(cfg.Speech, nil)
		log.Println("speech service initialized")
	} else {
		log.Println("speech credentials not configured, synthesis disabled")
	}

	retry := triage.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Upstream.MaxRetries
	retry.Timeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	triageSvc := triage.NewService(convs, assessor, finder, retry, cfg.Triage.QueueLimit)

	router := handler.NewRouter(triageSvc, agentSvc, speechSvc, finder != nil)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("triage gateway listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
