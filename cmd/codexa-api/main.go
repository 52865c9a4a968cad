package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"

	"github.com/PabloGalante/codexa/internal/adapters/auth"
	"github.com/PabloGalante/codexa/internal/adapters/host"
	httpadapter "github.com/PabloGalante/codexa/internal/adapters/http"
	"github.com/PabloGalante/codexa/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/codexa/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/codexa/internal/adapters/storage/memory"
	"github.com/PabloGalante/codexa/internal/adapters/storage/postgres"
	"github.com/PabloGalante/codexa/internal/adapters/storage/rediscache"
	"github.com/PabloGalante/codexa/internal/app/acquire"
	"github.com/PabloGalante/codexa/internal/app/background"
	"github.com/PabloGalante/codexa/internal/app/conversation"
	"github.com/PabloGalante/codexa/internal/app/history"
	"github.com/PabloGalante/codexa/internal/app/identity"
	"github.com/PabloGalante/codexa/internal/app/persistence"
	"github.com/PabloGalante/codexa/internal/app/session"
	"github.com/PabloGalante/codexa/internal/config"
	"github.com/PabloGalante/codexa/internal/domain"
	"github.com/PabloGalante/codexa/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		observability.Logger().Error("codexa api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.SetLevel(cfg.LogLevel)
	log := observability.WithFields("service", "codexa-api")

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warn("closing resource", "error", err)
			}
		}
	}()

	llmClient, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}

	// Firebase backs both sign-in and the Firestore store.
	var fbApp *firebase.App
	if cfg.Auth.Backend == "firebase" || cfg.Storage.Backend == "firestore" {
		fbApp, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.GCP.ProjectID})
		if err != nil {
			return fmt.Errorf("initializing firebase app: %w", err)
		}
	}

	var verifier domain.TokenVerifier
	switch cfg.Auth.Backend {
	case "firebase":
		log.Info("using firebase auth", "project", cfg.GCP.ProjectID)
		fbAuth, err := fbApp.Auth(ctx)
		if err != nil {
			return fmt.Errorf("initializing firebase auth: %w", err)
		}
		verifier = auth.NewFirebaseVerifier(fbAuth)
	default:
		log.Info("using static auth")
		verifier = auth.NewStaticVerifier()
	}

	var store domain.ConversationStore
	switch cfg.Storage.Backend {
	case "firestore":
		log.Info("using firestore storage", "project", cfg.GCP.ProjectID)
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("initializing firestore client: %w", err)
		}
		closers = append(closers, client)
		if store, err = firestorestore.NewStore(client); err != nil {
			return err
		}
	case "postgres":
		log.Info("using postgres storage")
		pg, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("initializing postgres store: %w", err)
		}
		closers = append(closers, pg)
		store = pg
	default:
		log.Info("using in-memory storage")
		store = memstore.NewConversationStore()
	}

	if cfg.Cache.RedisAddr != "" {
		log.Info("caching conversations in redis", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
		rdb, err := rediscache.NewClient(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		closers = append(closers, rdb)
		store = rediscache.New(rdb, store, cfg.Cache.TTL)
	}

	runner := background.NewRunner(64)
	bridge := host.NewBridge()
	id := identity.New(verifier)
	gateway := persistence.NewGateway(store)
	pipeline := conversation.NewService(llmClient, gateway, id, runner)

	handler := httpadapter.NewServer(httpadapter.Deps{
		Session:        session.New(id, acquire.New(bridge), pipeline, gateway),
		History:        history.NewService(gateway, id),
		Identity:       id,
		Bridge:         bridge,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("codexa api listening", "addr", srv.Addr, "mode", cfg.Mode, "llm", cfg.LLM.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	runner.Wait()
	return nil
}

func newLLMClient(ctx context.Context, cfg *config.Config) (domain.LLMClient, error) {
	switch cfg.LLM.Backend {
	case "rest":
		observability.Logger().Info("using rest llm client", "model", cfg.LLM.Model)
		return llm.NewRESTClient(llm.RESTConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
	case "genai":
		observability.Logger().Info("using genai llm client", "model", cfg.LLM.Model)
		return llm.NewGenAIClient(ctx, llm.GenAIConfig{
			APIKey:    cfg.LLM.APIKey,
			ProjectID: cfg.GCP.ProjectID,
			Location:  cfg.GCP.Location,
			Model:     cfg.LLM.Model,
			Timeout:   cfg.LLM.Timeout,
		})
	default:
		observability.Logger().Info("using mock llm client")
		return llm.NewMockLLM(), nil
	}
}
