package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/itish2003/ragagent/checkpoint"
	"github.com/itish2003/ragagent/config"
	"github.com/itish2003/ragagent/llm"
	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/services"
	"github.com/itish2003/ragagent/tools"
	"github.com/itish2003/ragagent/vectorstore"
)

// app holds the wired services for one command invocation.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	httpClient *http.Client

	index     vectorstore.Index
	docs      *services.DocumentService
	retrieval *services.RetrievalService
	registry  *tools.Registry

	// Set only by withAgent.
	store  *checkpoint.Store
	model  llm.Model
	agent  *services.AgentService
	tables *services.TableService
}

func newLogger() (*logger.Logger, error) {
	if flagQuiet {
		return logger.NewNop(), nil
	}
	return logger.New(os.Getenv("LOG_MODE"), os.Getenv("LOG_LEVEL"))
}

// newApp loads configuration and opens the document side: embedder, index,
// ingestion and retrieval.
func newApp(ctx context.Context) (*app, error) {
	log, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("cannot create logger: %w", err)
	}
	cfg, err := config.Load(log)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	embedder, err := llm.NewEmbedder(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	index, err := vectorstore.New(ctx, cfg, embedder, log)
	if err != nil {
		return nil, err
	}

	ingestion := services.NewIngestionService(cfg.ChunkSize, cfg.ChunkOverlap, cfg.UnidocLicenseKey, log)
	docs, err := services.NewDocumentService(ingestion, index, cfg.UploadDir, log)
	if err != nil {
		index.Close()
		return nil, err
	}
	retrieval := services.NewRetrievalService(index, cfg.RetrievalK, log)

	registry, err := tools.NewRegistry(tools.Deps{
		Retriever:          retrieval,
		HTTPClient:         httpClient,
		WeatherBaseURL:     cfg.WeatherBaseURL,
		WikipediaUserAgent: cfg.WikipediaUserAgent,
		Timeout:            cfg.ToolTimeout,
		Log:                log,
	})
	if err != nil {
		index.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		httpClient: httpClient,
		index:      index,
		docs:       docs,
		retrieval:  retrieval,
		registry:   registry,
	}, nil
}

// withAgent adds the chat model, checkpoint store and agent.
func (a *app) withAgent(ctx context.Context) error {
	model, err := llm.New(ctx, a.cfg, flagProvider, a.httpClient, a.log)
	if err != nil {
		return err
	}
	if err := a.openStore(); err != nil {
		return err
	}

	a.model = model
	a.agent = services.NewAgentService(model, a.registry, a.store, services.AgentConfig{
		MaxIterations: a.cfg.MaxIterations,
		ModelTimeout:  a.cfg.ModelTimeout,
	}, a.log)
	a.selectableModels(ctx)
	a.tables = services.NewTableService(model, services.DefaultMaxTableRows, a.log).WithTimeout(a.cfg.ModelTimeout)

	if vision := a.vision(ctx); vision != nil {
		a.agent.WithImageReader(services.NewOCRService(vision, a.log).WithTimeout(a.cfg.ModelTimeout))
	}
	return nil
}

// selectableModels registers every provider that can be built so chat
// requests can pick one per turn.
func (a *app) selectableModels(ctx context.Context) {
	def := flagProvider
	if def == "" {
		def = a.cfg.LLMProvider
	}
	for _, p := range llm.Providers() {
		if strings.EqualFold(p, def) {
			a.agent.WithModel(p, a.model)
			continue
		}
		m, err := llm.New(ctx, a.cfg, p, a.httpClient, a.log)
		if err != nil {
			a.log.Info("model not selectable", "provider", p, "reason", err)
			continue
		}
		a.agent.WithModel(p, m)
	}
}

func (a *app) openStore() error {
	if a.store != nil {
		return nil
	}
	store, err := checkpoint.Open(a.cfg.CheckpointDB, a.log)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

// vision returns a Gemini model for image input, or nil when no API key is set.
func (a *app) vision(ctx context.Context) services.Describer {
	if g, ok := a.model.(*llm.Gemini); ok {
		return g
	}
	if err := a.cfg.RequireGemini(); err != nil {
		a.log.Info("image input disabled", "reason", err)
		return nil
	}
	client, err := llm.NewGeminiClient(ctx, a.cfg.GoogleAPIKey, a.httpClient)
	if err != nil {
		a.log.Warn("image input disabled", "error", err)
		return nil
	}
	return llm.NewGemini(client, a.cfg.GeminiModel, a.log)
}

func (a *app) Close() {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.index.Close())
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("error during shutdown", "error", err)
	}
	a.log.Sync()
}
