package server

import (
	"context"
	"log"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/MingHacker/AIKnowledgeBase/app/api"
	"github.com/MingHacker/AIKnowledgeBase/app/middleware"
	"github.com/MingHacker/AIKnowledgeBase/chunker"
	"github.com/MingHacker/AIKnowledgeBase/config"
	"github.com/MingHacker/AIKnowledgeBase/extract"
	"github.com/MingHacker/AIKnowledgeBase/ingest"
	"github.com/MingHacker/AIKnowledgeBase/model"
	"github.com/MingHacker/AIKnowledgeBase/pipeline"
	"github.com/MingHacker/AIKnowledgeBase/rag"
	"github.com/MingHacker/AIKnowledgeBase/store"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	app    *fiber.App
	store  *store.PostgresStore
	cancel context.CancelFunc
}

func NewServer(cfg config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.app != nil {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error("shutdown", "error", err)
		}
	}
	if s.store != nil {
		s.store.Close()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	pool, err := store.NewPostgresStore(ctx, s.cfg.ConnString())
	if err != nil {
		log.Fatal("error to connect to Postgres database ", err)
		return
	}
	s.store = pool

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables ", err)
		return
	}

	index := store.NewPgVectorIndex(pool.Pool(), s.cfg.EmbeddingDim)
	if err := index.Init(ctx); err != nil {
		log.Fatal("error to create vector index ", err)
		return
	}

	extractor := extract.NewPDFExtractor()
	extractor.CropTop = s.cfg.CropTop
	extractor.CropBottom = s.cfg.CropBottom

	var (
		splitter  = chunker.New(s.cfg.ChunkSize, s.cfg.ChunkOverlap)
		embedder  = model.NewOllamaEmbedder(s.cfg.EmbeddingURL, s.cfg.EmbeddingModel)
		generator = model.NewOllamaGenerator(s.cfg.GenerateURL, s.cfg.GenerateModel, s.cfg.MaxTokens, s.cfg.Temperature)
		processor = pipeline.NewProcessor(pool, extractor, splitter, embedder, index, s.cfg.EmbedBatchSize)
		answerer  = rag.NewService(pool, pool, embedder, generator, index, s.cfg.SimilarityThreshold, s.cfg.TopK)
	)

	var (
		app             = fiber.New(fiberConfig)
		checkHandler    = api.NewCheckHandler(pool.Pool())
		documentHandler = api.NewDocumentHandler(pool, processor, index, s.cfg.UploadDir, s.cfg.MaxUploadBytes)
		chatHandler     = api.NewChatHandler(pool, answerer)
		settingsHandler = api.NewSettingsHandler(pool)

		check = app.Group("/check")
		apiv1 = app.Group("/api/v1", middleware.WithUser())
	)
	s.app = app

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/ready", checkHandler.HandleReady)

	apiv1.Post("/documents/upload", documentHandler.HandleUpload)
	apiv1.Get("/documents", documentHandler.HandleList)
	apiv1.Post("/documents/process-bulk", documentHandler.HandleBulkProcess)
	apiv1.Get("/documents/:id", documentHandler.HandleGet)
	apiv1.Delete("/documents/:id", documentHandler.HandleDelete)
	apiv1.Post("/documents/:id/process", documentHandler.HandleProcess)
	apiv1.Post("/documents/:id/reprocess", documentHandler.HandleReprocess)
	apiv1.Get("/documents/:id/status", documentHandler.HandleStatus)
	apiv1.Get("/documents/:id/jobs", documentHandler.HandleJobs)

	apiv1.Post("/chat/ask", chatHandler.HandleAsk)
	apiv1.Post("/chat/sessions", chatHandler.HandleCreateSession)
	apiv1.Get("/chat/sessions", chatHandler.HandleListSessions)
	apiv1.Patch("/chat/sessions/:id", chatHandler.HandleUpdateSession)
	apiv1.Delete("/chat/sessions/:id", chatHandler.HandleCloseSession)
	apiv1.Get("/chat/sessions/:id/history", chatHandler.HandleHistory)
	apiv1.Get("/chat/suggestions", chatHandler.HandleSuggestions)

	apiv1.Get("/settings", settingsHandler.HandleGet)
	apiv1.Put("/settings", settingsHandler.HandleUpdate)
	apiv1.Post("/settings/reset", settingsHandler.HandleReset)

	if s.cfg.InboxDir != "" {
		inboxUser, err := uuid.Parse(s.cfg.InboxUserID)
		if err != nil {
			s.logger.Error("inbox watcher disabled: invalid INBOX_USER_ID", "value", s.cfg.InboxUserID)
		} else {
			watcher := ingest.NewWatcher(pool, processor, s.cfg.InboxDir, s.cfg.UploadDir, inboxUser)
			go watcher.Run(ctx)
		}
	}

	if err := app.Listen(s.cfg.ServerAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}
