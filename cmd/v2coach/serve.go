package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/PabloGalante/v2-coach/internal/adapters/http"
	"github.com/PabloGalante/v2-coach/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/v2-coach/internal/adapters/storage/firestore"
	"github.com/PabloGalante/v2-coach/internal/adapters/storage/memory"
	"github.com/PabloGalante/v2-coach/internal/adapters/storage/postgres"
	"github.com/PabloGalante/v2-coach/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/v2-coach/internal/app/coach"
	"github.com/PabloGalante/v2-coach/internal/app/workspace"
	"github.com/PabloGalante/v2-coach/internal/config"
	"github.com/PabloGalante/v2-coach/internal/domain"
	"github.com/PabloGalante/v2-coach/internal/observability"
)

// loadConfig reads the config, applies flag overrides and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	observability.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	log := observability.Logger()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Calendar.Location()
	if err != nil {
		return err
	}

	client, err := newCoachClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	repo, closeRepo, err := newRepository(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo()

	reg := workspace.NewRegistry(workspace.Options{
		Client:     client,
		Repository: repo,
		Location:   loc,
		Coach: coach.Config{
			FocusDuration:      cfg.Coach.FocusDuration(),
			RecalibrationDelay: cfg.Coach.RecalibrationDelay,
			ReplyTimeout:       cfg.LLM.Timeout,
		},
	})
	defer reg.Close()

	handler := httpadapter.NewServer(reg, client, httpadapter.Options{
		Location:     loc,
		ReplyTimeout: cfg.LLM.Timeout,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("v2coach API listening",
			"port", cfg.Server.Port,
			"llm_provider", cfg.LLM.Provider,
			"storage_backend", cfg.Storage.Backend,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newCoachClient(ctx context.Context, cfg config.LLMConfig) (domain.CoachClient, error) {
	switch cfg.Provider {
	case "openai":
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return c, nil
	case "vertex":
		c, err := llm.NewVertexClient(ctx, llm.VertexConfig{
			Project:     cfg.GCPProject,
			Location:    cfg.GCPLocation,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("init vertex client: %w", err)
		}
		return c, nil
	default:
		observability.Logger().Info("using mock coach client")
		return llm.NewMockLLM(), nil
	}
}

func newRepository(ctx context.Context, cfg config.StorageConfig) (domain.TaskRepository, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		s, err := sqlite.NewStore(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, s.Close, nil
	case "firestore":
		s, err := firestorestore.NewStore(ctx, cfg.GCPProject)
		if err != nil {
			return nil, nil, fmt.Errorf("init firestore store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return memory.NewTaskRepository(), func() {}, nil
	}
}
