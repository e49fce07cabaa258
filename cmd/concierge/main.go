package main

import (
	"context"
	"log"
	"os"

	concierge "github.com/shaadiscout/concierge"
	"github.com/shaadiscout/concierge/gemini"
	"github.com/shaadiscout/concierge/moderation"
	"github.com/shaadiscout/concierge/retrieval"
	"github.com/shaadiscout/concierge/server"
	"github.com/shaadiscout/concierge/stores"
	"github.com/shaadiscout/concierge/tools"
)

func main() {
	logger := log.New(os.Stdout, "[CONCIERGE] ", log.LstdFlags)

	cfg, err := concierge.LoadConfig()
	if err != nil {
		logger.Fatalf("configuration error: %v", err)
	}

	store, err := stores.NewStore(stores.NewStoreConfig(cfg.StoreType, cfg.StoreDSN))
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	embedder, err := retrieval.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		logger.Fatalf("failed to create embedder: %v", err)
	}

	index, err := retrieval.OpenVendorIndex(cfg.VendorIndexPath, embedder.Dimensions())
	if err != nil {
		logger.Fatalf("failed to open vendor index: %v", err)
	}
	defer index.Close()

	retriever := retrieval.NewRetriever(embedder, index, logger)
	moderator := moderation.NewClient(cfg.ModerationAPIKey, logger)

	registry := tools.NewRegistry(logger, tools.WebSearchTool(cfg.BraveAPIKey))
	backend := &gemini.Model{
		Model:        cfg.GeminiModel,
		SystemPrompt: cfg.SystemPrompt,
		APIKey:       cfg.GeminiAPIKey,
	}
	agent := concierge.NewAgent(backend, registry, logger)

	router := concierge.NewChatRouter(moderator, retriever, agent, logger)
	router.Messages = store
	router.Turns = store

	srv := server.New(router, store, index, logger)
	jobs := srv.StartJobs()
	defer jobs.Stop()

	logger.Printf("listening on %s", cfg.Addr)
	if err := srv.Routes().Run(cfg.Addr); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}
