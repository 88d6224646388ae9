package bootstrap

import (
	"log"

	"ai-studynotes-be/internal/config"
	"ai-studynotes-be/internal/controller"
	"ai-studynotes-be/internal/pkg/logger"
	"ai-studynotes-be/internal/repository/memory"
	"ai-studynotes-be/internal/repository/unitofwork"
	"ai-studynotes-be/internal/service"
	"ai-studynotes-be/pkg/llm/factory"

	pktNats "ai-studynotes-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	NotebookController   controller.INotebookController
	NoteController       controller.INoteController
	GenerationController controller.IGenerationController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// 3. Services
	llmBaseURL := cfg.Ai.OllamaBaseURL
	if cfg.Ai.LLMProvider == "openai" {
		llmBaseURL = cfg.Ai.OpenAIBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		llmBaseURL,
		cfg.Ai.OpenAIAPIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	jobRegistry := memory.NewJobRegistry()

	publisherService := service.NewPublisherService(pubSub, cfg.App.GenerationTopic)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.GenerationTopic,
		uowFactory,
		llmProvider,
		sysLogger,
	)

	noteService := service.NewNoteService(uowFactory, natsPub, sysLogger)
	notebookService := service.NewNotebookService(uowFactory)
	generationService := service.NewGenerationService(
		uowFactory,
		llmProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.MaxSourceChars,
		jobRegistry,
		publisherService,
		natsPub,
		sysLogger,
	)

	// 4. Controllers
	noteController := controller.NewNoteController(noteService)
	notebookController := controller.NewNotebookController(notebookService)
	generationController := controller.NewGenerationController(
		generationService,
		cfg.Ai.GenerateTimeout,
		sysLogger,
	)

	return &Container{
		NotebookController:   notebookController,
		NoteController:       noteController,
		GenerationController: generationController,
		ConsumerService:      consumerService,
	}
}
