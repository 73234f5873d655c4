package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonathan/ckd-assistant/internal/catalog"
	"github.com/jonathan/ckd-assistant/internal/config"
	"github.com/jonathan/ckd-assistant/internal/db"
	"github.com/jonathan/ckd-assistant/internal/history"
	"github.com/jonathan/ckd-assistant/internal/knowledge"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
)

// searchCacheSize bounds the per-process knowledge search cache.
const searchCacheSize = 256

// app holds the components shared by the commands. Fields that a command does
// not need stay nil.
type app struct {
	cfg       config.Config
	llmConfig *llm.Config
	client    llm.Client
	store     knowledge.Store
	index     *knowledge.SQLiteStore
	db        *db.DB
	logger    *slog.Logger
}

// modelConfig returns the provider defaults with the configured model overrides.
func modelConfig(cfg config.Config) (*llm.Config, error) {
	mc, err := llm.ConfigFor(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.Model != "" {
		mc = mc.WithAllModels(cfg.Model)
	}
	for tier, model := range cfg.Models {
		mc = mc.WithModel(llm.ModelTier(tier), model)
	}
	return mc, nil
}

// embeddingProvider picks the provider whose embeddings back the index. Groq has
// no embedding endpoint, so it reuses the Gemini index.
func embeddingProvider(p llm.Provider) llm.Provider {
	if p == llm.ProviderGroq {
		return llm.ProviderGemini
	}
	return p
}

func newApp(cfg config.Config) *app {
	return &app{cfg: cfg, logger: logging.New("cli")}
}

// withClient creates the LLM client for the configured provider.
func (a *app) withClient(ctx context.Context) error {
	mc, err := modelConfig(a.cfg)
	if err != nil {
		return err
	}
	apiKey := llm.APIKey(mc.Provider)
	if apiKey == "" {
		return fmt.Errorf("%s environment variable is required", llm.APIKeyEnv(mc.Provider))
	}
	client, err := llm.NewClient(ctx, mc, apiKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.llmConfig = mc
	a.client = client
	return nil
}

// openIndex opens the provider-bound knowledge index.
func (a *app) openIndex(ctx context.Context) error {
	mc, err := modelConfig(a.cfg)
	if err != nil {
		return err
	}
	provider := embeddingProvider(mc.Provider)
	apiKey := llm.APIKey(provider)
	if apiKey == "" {
		return fmt.Errorf("%s environment variable is required for embeddings", llm.APIKeyEnv(provider))
	}
	embedder, err := llm.NewEmbedder(ctx, provider, apiKey)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	index, err := knowledge.OpenSQLite(ctx, a.cfg.KnowledgeDir, embedder)
	if err != nil {
		return err
	}
	cached, err := knowledge.NewCachedStore(index, searchCacheSize)
	if err != nil {
		_ = index.Close()
		return err
	}
	a.index = index
	a.store = cached
	return nil
}

// withKnowledge opens the index for retrieval. Assessments still run without
// one, with every search reporting no evidence.
func (a *app) withKnowledge(ctx context.Context) {
	if err := a.openIndex(ctx); err != nil {
		a.logger.Warn("knowledge index unavailable, research will run without evidence", "error", err)
		a.store = knowledge.Empty{}
	}
}

// withDB connects to the run database when one is configured.
func (a *app) withDB(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, assessment runs will not be persisted")
		return nil
	}
	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return err
	}
	a.db = database
	return nil
}

// catalogSource returns the question source: the configured file, re-read on
// every session, or the built-in catalog.
func (a *app) catalogSource() (catalog.Source, error) {
	if a.cfg.QuestionsFile != "" {
		src := catalog.FileSource{Path: a.cfg.QuestionsFile}
		if _, err := src.Current(); err != nil {
			return nil, err
		}
		return src, nil
	}
	c, err := catalog.Load()
	if err != nil {
		return nil, err
	}
	return catalog.Static{Catalog: c}, nil
}

// runner builds the assessment pipeline from the components opened so far.
// out receives stage progress lines when non-nil.
func (a *app) runner(out io.Writer) *pipeline.Runner {
	r := &pipeline.Runner{
		Client:       a.client,
		Knowledge:    a.store,
		History:      history.NewRepository(a.cfg.HistoryDir, a.cfg.HistorySampleSize),
		Provider:     a.cfg.Provider,
		K:            a.cfg.RetrievalK,
		StageTimeout: a.cfg.StageTimeout.Std(),
		Out:          out,
	}
	if a.db != nil {
		r.Recorder = a.db
	}
	return r
}

// modelName reports the model used for the final presentation stage.
func (a *app) modelName() string {
	if a.llmConfig == nil {
		return ""
	}
	return a.llmConfig.GetModel(llm.TierStandard)
}

func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout
