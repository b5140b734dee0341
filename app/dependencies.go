package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/upb/model-router/config"
	"github.com/upb/model-router/repositories/postgres"
	"github.com/upb/model-router/services/audit"
	"github.com/upb/model-router/services/cache"
	"github.com/upb/model-router/services/providers"
	"github.com/upb/model-router/services/providers/ollama"
	"github.com/upb/model-router/services/providers/openai"
	"github.com/upb/model-router/services/providers/tei"
	"github.com/upb/model-router/services/registry"
	"github.com/upb/model-router/services/routing"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB  // nil when no decision database is configured
	Redis  *redis.Client // nil when no embedding cache is configured

	// Domain
	Registry    *registry.Registry
	ChatClients map[string]providers.ChatClient
	Embedder    providers.EmbeddingClient // nil for the keyword strategy
	Strategy    routing.Strategy
	Router      *routing.RouterService
	Audit       *audit.Service // nil when no decision database is configured
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRedis(cfg)
	deps.initChatClients(cfg)

	if err := deps.initRegistry(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize backend registry: %w", err)
	}

	if err := deps.initAudit(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit service: %w", err)
	}

	if err := deps.initRouting(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize routing: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects to the optional decision database
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.URL == "" {
		d.Logger.Info("no decision database configured, decisions will not be persisted")
		return nil
	}

	db, err := postgres.NewDB(cfg.Database.URL, d.Logger)
	if err != nil {
		return err
	}

	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return err
	}

	d.DB = db
	return nil
}

// initRedis connects to the optional embedding cache
func (d *Dependencies) initRedis(cfg *config.Config) {
	if cfg.Redis.Addr == "" {
		return
	}

	d.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	d.Logger.Info("embedding cache configured", zap.String("addr", cfg.Redis.Addr))
}

// initChatClients builds one chat client per configured provider
func (d *Dependencies) initChatClients(cfg *config.Config) {
	clients := make(map[string]providers.ChatClient)

	if cfg.Providers.OpenAI.APIKey != "" {
		clients["openai"] = openai.NewAdapter(providers.ClientConfig{
			APIKey:     cfg.Providers.OpenAI.APIKey,
			BaseURL:    cfg.Providers.OpenAI.BaseURL,
			Timeout:    cfg.Providers.OpenAI.Timeout,
			MaxRetries: cfg.Providers.OpenAI.MaxRetries,
			RetryDelay: time.Second,
		})
		d.Logger.Info("registered openai chat client")
	}

	if cfg.Providers.Ollama.BaseURL != "" {
		clients["ollama"] = ollama.NewAdapter(providers.ClientConfig{
			BaseURL:    cfg.Providers.Ollama.BaseURL,
			Timeout:    cfg.Providers.Ollama.Timeout,
			MaxRetries: cfg.Providers.Ollama.MaxRetries,
			RetryDelay: time.Second,
		})
		d.Logger.Info("registered ollama chat client")
	}

	if len(clients) == 0 {
		d.Logger.Warn("no chat providers configured")
	}

	d.ChatClients = clients
}

// initRegistry loads the backends file and registers every backend in file
// order. The last entry becomes the default.
func (d *Dependencies) initRegistry(cfg *config.Config) error {
	specs, err := config.LoadBackends(cfg.Routing.BackendsFile)
	if err != nil {
		return err
	}

	reg := registry.New()
	for _, spec := range specs {
		err := reg.Register(&registry.BackendDescriptor{
			ID:              spec.ID,
			CapabilityLabel: spec.Capability,
			ModelID:         spec.Model,
			Provider:        spec.Provider,
		})
		if err != nil {
			return fmt.Errorf("backend %q: %w", spec.ID, err)
		}
	}

	d.Registry = reg
	d.Logger.Info("backend registry initialized", zap.Int("backends", reg.Count()))
	return nil
}

// initAudit starts the async decision logger when a database is configured
func (d *Dependencies) initAudit(cfg *config.Config) error {
	if d.DB == nil {
		return nil
	}

	repo := postgres.NewDecisionRepository(d.DB, d.Logger)
	service := audit.NewService(repo, d.Logger, audit.DefaultConfig())
	if err := service.Start(); err != nil {
		return err
	}

	d.Audit = service
	return nil
}

// initRouting builds the configured strategy and the router on top of it
func (d *Dependencies) initRouting(ctx context.Context, cfg *config.Config) error {
	switch cfg.Routing.Strategy {
	case "keyword":
		classifier, ok := d.ChatClients[cfg.Routing.ClassifierProvider]
		if !ok {
			return fmt.Errorf("classifier provider %q is not configured", cfg.Routing.ClassifierProvider)
		}
		d.Strategy = routing.NewKeywordStrategy(d.Registry, classifier, cfg.Routing.ClassifierModel, d.Logger)

	case "embedding":
		embedder, err := d.buildEmbedder(cfg)
		if err != nil {
			return err
		}
		d.Embedder = embedder

		strategy := routing.NewEmbeddingStrategy(d.Registry, embedder, d.Logger)
		if err := strategy.Prime(ctx); err != nil {
			return err
		}
		d.Strategy = strategy

	default:
		return fmt.Errorf("unknown routing strategy %q", cfg.Routing.Strategy)
	}

	var recorder routing.DecisionRecorder
	if d.Audit != nil {
		recorder = d.Audit
	}

	d.Router = routing.NewRouterService(d.Registry, d.Strategy, d.ChatClients, recorder, d.Logger)
	d.Logger.Info("router initialized", zap.String("strategy", cfg.Routing.Strategy))
	return nil
}

// buildEmbedder constructs the embedding client for the configured provider,
// wrapped with the Redis cache when one is available
func (d *Dependencies) buildEmbedder(cfg *config.Config) (providers.EmbeddingClient, error) {
	var embedder providers.EmbeddingClient

	switch cfg.Embeddings.Provider {
	case "tei":
		embedder = tei.NewEmbedder(providers.ClientConfig{
			BaseURL:    cfg.Embeddings.TEIBaseURL,
			MaxRetries: 2,
			RetryDelay: time.Second,
		})

	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings require OPENAI_API_KEY")
		}
		embedder = openai.NewAdapter(providers.ClientConfig{
			APIKey:     cfg.Providers.OpenAI.APIKey,
			BaseURL:    cfg.Providers.OpenAI.BaseURL,
			Timeout:    cfg.Providers.OpenAI.Timeout,
			MaxRetries: cfg.Providers.OpenAI.MaxRetries,
			RetryDelay: time.Second,
		}).WithEmbeddingModel(cfg.Embeddings.Model)

	case "ollama":
		embedder = ollama.NewAdapter(providers.ClientConfig{
			BaseURL:    cfg.Providers.Ollama.BaseURL,
			Timeout:    cfg.Providers.Ollama.Timeout,
			MaxRetries: cfg.Providers.Ollama.MaxRetries,
			RetryDelay: time.Second,
		}).WithEmbeddingModel(cfg.Embeddings.Model)

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}

	if d.Redis != nil {
		embedder = cache.NewCachedEmbedder(embedder, d.Redis, cfg.Embeddings.CacheTTL, d.Logger)
	}

	return embedder, nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		if err := d.Audit.Stop(5 * time.Second); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
