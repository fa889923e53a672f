package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database   DatabaseConfig   `yaml:"-"`
	Store      StoreConfig      `yaml:"store"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	OpenAI     OpenAIConfig     `yaml:"-"`
	Gemini     GeminiConfig     `yaml:"-"`
	Search     SearchConfig     `yaml:"search"`
	Statistics StatisticsConfig `yaml:"statistics"`
	PhotoPrism PhotoPrismConfig `yaml:"-"`
	Web        WebConfig        `yaml:"web"`
}

type PhotoPrismConfig struct {
	Domain      string // public domain for generating photo links (e.g., https://photos.example.com)
	DatabaseURL string // MariaDB DSN for direct database access (e.g., photoprism:photoprism@tcp(mariadb:3306)/photoprism)
}

// PhotoURL returns an OSC 8 hyperlink for terminal emulators (iTerm2, etc.)
// Displays the UID but makes it clickable to open the photo in PhotoPrism
// Returns empty string if Domain is not set
func (c *PhotoPrismConfig) PhotoURL(uid string) string {
	if c.Domain == "" {
		return ""
	}
	url := c.Domain + "/library/browse?view=cards&order=oldest&q=uid:" + uid
	// OSC 8 hyperlink format: \e]8;;URL\e\\TEXT\e]8;;\e\\
	return "\x1b]8;;" + url + "\x1b\\" + uid + "\x1b]8;;\x1b\\"
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`   // http, openai or gemini
	URL       string        `yaml:"url"`        // embedding server for the http provider
	Model     string        `yaml:"model"`      // empty selects the provider default
	Dim       int           `yaml:"dim"`        // must match the vector(512) columns
	Timeout   time.Duration `yaml:"timeout"`    // per text embedding request
	CacheSize int           `yaml:"cache_size"` // 0 disables the text embedding cache
	Breaker   BreakerConfig `yaml:"breaker"`
}

type SearchConfig struct {
	MaxDistance float64 `yaml:"max_distance"` // cosine distance cut-off, 0 disables
}

type StatisticsConfig struct {
	CacheSize int `yaml:"cache_size"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	JWTSecret      string   `yaml:"-"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL                    string // PostgreSQL connection URL
	MaxOpenConns           int    // Maximum open connections (default 25)
	MaxIdleConns           int    // Maximum idle connections (default 5)
	HNSWEmbeddingIndexPath string // Path to persist asset embedding HNSW index (optional, if empty index is rebuilt on startup)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envSize is like envInt but accepts 0, which disables a cache.
func envSize(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envDuration parses a Go duration such as "5s". Invalid or non-positive values keep the default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping blank entries.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Defaults returns the embedded defaults without environment overrides.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Database = DatabaseConfig{
		URL:                    os.Getenv("DATABASE_URL"),
		MaxOpenConns:           envInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:           envInt("DATABASE_MAX_IDLE_CONNS", 5),
		HNSWEmbeddingIndexPath: os.Getenv("HNSW_EMBEDDING_INDEX_PATH"),
	}
	cfg.OpenAI = OpenAIConfig{Token: os.Getenv("OPENAI_TOKEN")}
	cfg.Gemini = GeminiConfig{APIKey: os.Getenv("GEMINI_API_KEY")}
	cfg.PhotoPrism = PhotoPrismConfig{
		Domain:      os.Getenv("PHOTOPRISM_DOMAIN"),
		DatabaseURL: os.Getenv("PHOTOPRISM_DATABASE_URL"),
	}

	cfg.Store.Timeout = envDuration("STORE_TIMEOUT", cfg.Store.Timeout)

	cfg.Embedding.Provider = strings.ToLower(envString("EMBEDDING_PROVIDER", cfg.Embedding.Provider))
	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.Model = envString("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dim = envInt("EMBEDDING_DIM", cfg.Embedding.Dim)
	cfg.Embedding.Timeout = envDuration("EMBEDDING_TIMEOUT", cfg.Embedding.Timeout)
	cfg.Embedding.CacheSize = envSize("EMBEDDING_CACHE_SIZE", cfg.Embedding.CacheSize)

	cfg.Search.MaxDistance = envFloat("SEARCH_MAX_DISTANCE", cfg.Search.MaxDistance)
	cfg.Statistics.CacheSize = envSize("STATS_CACHE_SIZE", cfg.Statistics.CacheSize)

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.JWTSecret = os.Getenv("WEB_JWT_SECRET")
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", cfg.Web.AllowedOrigins)

	return cfg
}
