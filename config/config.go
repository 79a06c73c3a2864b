package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable the services consume. Values come from the
// environment (godotenv loads .env in main); tests construct it directly.
type Config struct {
	ServerAddr string

	PGHost   string
	PGPort   int
	PGUser   string
	PGPass   string
	PGDBName string

	UploadDir      string
	MaxUploadBytes int64

	// Optional inbox directory watched for dropped PDFs. Empty disables
	// the watcher. InboxUserID owns whatever lands there.
	InboxDir    string
	InboxUserID string

	EmbeddingURL   string
	EmbeddingModel string
	EmbeddingDim   int

	GenerateURL   string
	GenerateModel string
	MaxTokens     int
	Temperature   float64

	ChunkSize           int
	ChunkOverlap        int
	SimilarityThreshold float64
	TopK                int
	EmbedBatchSize      int

	// Header/footer crop margins in points, applied before extraction
	// when non-zero.
	CropTop    float64
	CropBottom float64
}

func Load() Config {
	return Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8000"),

		PGHost:   getEnv("PG_HOST", "localhost"),
		PGPort:   getInt("PG_PORT", 5432),
		PGUser:   getEnv("PG_USER", "postgres"),
		PGPass:   getEnv("PG_PASS", "postgres"),
		PGDBName: getEnv("PG_DB_NAME", "knowledgebase"),

		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 50*1024*1024)),

		InboxDir:    getEnv("INBOX_DIR", ""),
		InboxUserID: getEnv("INBOX_USER_ID", ""),

		EmbeddingURL:   getEnv("OLLAMA_EMBEDDING_URL", "http://localhost:11434/api/embed"),
		EmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:   getInt("EMBEDDING_DIM", 768),

		GenerateURL:   getEnv("LLM_URL", "http://localhost:11434/api/generate"),
		GenerateModel: getEnv("LLM_MODEL", "llama3.1"),
		MaxTokens:     getInt("MAX_TOKENS", 1000),
		Temperature:   getFloat("TEMPERATURE", 0.7),

		ChunkSize:           getInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getInt("CHUNK_OVERLAP", 200),
		SimilarityThreshold: getFloat("SIMILARITY_THRESHOLD", 0.6),
		TopK:                getInt("TOP_K", 5),
		EmbedBatchSize:      getInt("EMBED_BATCH_SIZE", 10),

		CropTop:    getFloat("PDF_CROP_TOP", 0),
		CropBottom: getFloat("PDF_CROP_BOTTOM", 0),
	}
}

// ConnString builds the Postgres DSN the pgx pool connects with.
func (c Config) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PGHost, c.PGPort, c.PGUser, c.PGPass, c.PGDBName)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
