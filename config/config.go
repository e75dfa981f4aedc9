package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

// Config holds every setting read from the environment at startup.
type Config struct {
	GoogleAPIKey string

	LLMProvider   string
	GeminiModel   string
	LlamaModel    string
	OllamaBaseURL string

	EmbeddingProvider string
	EmbeddingModel    string
	EmbedConcurrency  int

	VectorBackend    string
	VectorMetric     string
	VectorStorePath  string
	IndexLockTimeout time.Duration
	ChromaCollection string

	UploadDir        string
	CheckpointDB     string
	UnidocLicenseKey string

	ChunkSize     int
	ChunkOverlap  int
	RetrievalK    int
	MaxIterations int

	ModelTimeout time.Duration
	ToolTimeout  time.Duration

	WeatherBaseURL     string
	WikipediaUserAgent string

	WatchUploads bool
	Port         string
	LogMode      string
}

// Load reads a .env file if one exists, then builds the Config from the
// environment and validates it.
func Load(log *logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, relying on environment variables.")
	}

	apiKey := GetEnv("GOOGLE_API_KEY", "", log)
	if apiKey == "" {
		apiKey = GetEnv("GEMINI_API_KEY", "", log)
	}

	cfg := &Config{
		GoogleAPIKey:       apiKey,
		LLMProvider:        strings.ToLower(GetEnv("LLM_PROVIDER", "gemini", log)),
		GeminiModel:        GetEnv("GEMINI_MODEL", "gemini-2.5-flash", log),
		LlamaModel:         GetEnv("LLAMA_MODEL", "llama3.2:3b", log),
		OllamaBaseURL:      strings.TrimRight(GetEnv("OLLAMA_BASE_URL", "http://localhost:11434", log), "/"),
		EmbeddingProvider:  strings.ToLower(GetEnv("EMBEDDING_PROVIDER", "ollama", log)),
		EmbeddingModel:     GetEnv("EMBEDDING_MODEL", "nomic-embed-text:v1.5", log),
		EmbedConcurrency:   GetEnvAsInt("EMBED_CONCURRENCY", 4, log),
		VectorBackend:      strings.ToLower(GetEnv("VECTOR_BACKEND", "file", log)),
		VectorMetric:       strings.ToLower(GetEnv("VECTOR_METRIC", "cosine", log)),
		VectorStorePath:    GetEnv("VECTORSTORE_PATH", "./data/vectorstore_index", log),
		IndexLockTimeout:   GetEnvAsDuration("INDEX_LOCK_TIMEOUT", 30*time.Second, log),
		ChromaCollection:   GetEnv("CHROMA_COLLECTION", "ragagent-documents", log),
		UploadDir:          GetEnv("UPLOAD_DIR", "./data/uploaded_docs", log),
		CheckpointDB:       GetEnv("CHECKPOINT_DB", "./data/checkpoints/checkpoint.db", log),
		UnidocLicenseKey:   GetEnv("UNIDOC_LICENSE_KEY", "", log),
		ChunkSize:          GetEnvAsInt("CHUNK_SIZE", 250, log),
		ChunkOverlap:       GetEnvAsInt("CHUNK_OVERLAP", 50, log),
		RetrievalK:         GetEnvAsInt("RETRIEVAL_K", 3, log),
		MaxIterations:      GetEnvAsInt("MAX_ITERATIONS", 10, log),
		ModelTimeout:       GetEnvAsDuration("MODEL_TIMEOUT", 60*time.Second, log),
		ToolTimeout:        GetEnvAsDuration("TOOL_TIMEOUT", 15*time.Second, log),
		WeatherBaseURL:     strings.TrimRight(GetEnv("WEATHER_BASE_URL", "https://wttr.in", log), "/"),
		WikipediaUserAgent: GetEnv("WIKIPEDIA_USER_AGENT", "ragagent/1.0 (https://github.com/itish2003/ragagent)", log),
		WatchUploads:       GetEnvAsBool("WATCH_UPLOADS", true, log),
		Port:               GetEnv("PORT", "8080", log),
		LogMode:            GetEnv("LOG_MODE", "dev", log),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values and numeric bounds.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "gemini", "llama":
	default:
		return fmt.Errorf("%w: LLM_PROVIDER must be 'gemini' or 'llama', got %q", models.ErrInvalidInput, c.LLMProvider)
	}
	switch c.EmbeddingProvider {
	case "ollama", "gemini":
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER must be 'ollama' or 'gemini', got %q", models.ErrInvalidInput, c.EmbeddingProvider)
	}
	switch c.VectorBackend {
	case "file", "chroma":
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND must be 'file' or 'chroma', got %q", models.ErrInvalidInput, c.VectorBackend)
	}
	switch c.VectorMetric {
	case "cosine", "l2":
	default:
		return fmt.Errorf("%w: VECTOR_METRIC must be 'cosine' or 'l2', got %q", models.ErrInvalidInput, c.VectorMetric)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", models.ErrInvalidInput, c.ChunkOverlap, c.ChunkSize)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("%w: RETRIEVAL_K must be positive", models.ErrInvalidInput)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: MAX_ITERATIONS must be positive", models.ErrInvalidInput)
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 1
	}
	return nil
}

// RequireGemini fails when a Gemini-backed component is used without a key.
func (c *Config) RequireGemini() error {
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("%w: GOOGLE_API_KEY is required for Gemini", models.ErrInvalidInput)
	}
	return nil
}

// EnsureDirectories creates the upload, checkpoint and vector store parents.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.UploadDir,
		filepath.Dir(c.CheckpointDB),
		filepath.Dir(c.VectorStorePath),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetEnv returns the value of key or def when it is unset.
func GetEnv(key, def string, log *logger.Logger) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	log.Debug("config default", "key", key)
	return def
}

func GetEnvAsInt(key string, def int, log *logger.Logger) int {
	raw := GetEnv(key, "", log)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn("invalid integer in environment, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func GetEnvAsBool(key string, def bool, log *logger.Logger) bool {
	raw := GetEnv(key, "", log)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn("invalid boolean in environment, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

// GetEnvAsDuration accepts Go duration strings ("30s") or plain seconds ("30").
func GetEnvAsDuration(key string, def time.Duration, log *logger.Logger) time.Duration {
	raw := GetEnv(key, "", log)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn("invalid duration in environment, using default", "key", key, "value", raw, "default", def.String())
	return def
}
