package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/payvat/vat-extraction-service/api"
	"github.com/payvat/vat-extraction-service/internal/ai"
	"github.com/payvat/vat-extraction-service/internal/db"
	"github.com/payvat/vat-extraction-service/internal/errtrack"
	"github.com/payvat/vat-extraction-service/internal/models"
	"github.com/payvat/vat-extraction-service/internal/ocr"
	"github.com/payvat/vat-extraction-service/internal/services"
	"github.com/payvat/vat-extraction-service/internal/storage"
	"github.com/payvat/vat-extraction-service/internal/tabular"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	config, err := loadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize database connection pool
	var errorStore errtrack.Store
	if err := db.Init(); err != nil {
		logger.Warn("Database not available, running in extraction-only mode", zap.Error(err))
		errorStore = errtrack.NewMemoryStore()
	} else {
		defer db.Close()
		logger.Info("Database connection pool initialized")
		errorStore = db.NewErrorStore()
	}

	// Initialize MinIO storage
	if err := storage.Init(); err != nil {
		logger.Warn("MinIO storage not available, documents will not be stored", zap.Error(err))
	} else {
		logger.Info("MinIO storage initialized")
	}

	tracker := errtrack.New(errorStore, logger)

	provider, err := newProvider(config)
	if err != nil {
		logger.Fatal("Failed to create AI provider", zap.Error(err))
	}

	validator := services.NewMultiMethodValidator(logger, tracker,
		services.NewVisionMethod(ai.NewVisionExtractor(provider)),
		services.NewTabularMethod(tabular.NewParser()),
		services.NewOCRMethod(ocr.NewPatternExtractor()),
	)
	if config.Extraction.MethodTimeoutSeconds > 0 {
		validator.SetMethodTimeout(time.Duration(config.Extraction.MethodTimeoutSeconds) * time.Second)
	}

	// Create API handler
	handler := api.NewHandler(config, logger, validator, tracker)
	router := handler.SetupRoutes()

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	logger.Info("Starting VAT Extraction Service",
		zap.String("version", api.Version),
		zap.String("addr", addr),
		zap.String("aiProvider", config.AI.DefaultProvider),
		zap.Bool("database", db.Pool != nil),
		zap.Bool("storage", storage.Client != nil),
	)

	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newProvider selects the configured AI backend.
func newProvider(config *models.Config) (ai.Provider, error) {
	switch config.AI.DefaultProvider {
	case "openai", "":
		return ai.NewOpenAIProvider(
			config.AI.OpenAI.APIKey,
			config.AI.OpenAI.BaseURL,
			config.AI.OpenAI.Model,
		), nil
	case "gemini":
		return ai.NewGeminiProvider(
			config.AI.Gemini.APIKey,
			config.AI.Gemini.Model,
		), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", config.AI.DefaultProvider)
	}
}

func loadConfig(path string) (*models.Config, error) {
	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.DefaultProvider = provider
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Gemini.Model = model
	}

	return &config, nil
}
