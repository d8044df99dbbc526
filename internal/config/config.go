package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDeclineReply is sent when retrieval finds nothing relevant.
const DefaultDeclineReply = "I'm sorry, I can only answer questions about the uploaded documents."

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Groq      GroqConfig      `yaml:"groq"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chat      ChatConfig      `yaml:"chat"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	MaxConns       int      `yaml:"max_conns"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type GroqConfig struct {
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	DocsDir string `yaml:"docs_dir"`
}

type ChunkerConfig struct {
	WindowWords  int `yaml:"window_words"`
	OverlapWords int `yaml:"overlap_words"`
}

type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

type ChatConfig struct {
	DeclineReply       string `yaml:"decline_reply"`
	CompletionTimeoutS int    `yaml:"completion_timeout_secs"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:     9000,
			MaxConns: 256,
		},
		Groq: GroqConfig{
			Model: "llama-3.3-70b-versatile",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			DocsDir: filepath.Join(dataDir, "docs"),
		},
		Chunker: ChunkerConfig{
			WindowWords:  400,
			OverlapWords: 60,
		},
		Retrieval: RetrievalConfig{
			TopK:     4,
			MinScore: 3.2,
		},
		Chat: ChatConfig{
			DeclineReply:       DefaultDeclineReply,
			CompletionTimeoutS: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docchat"
	}
	return filepath.Join(home, ".docchat")
}

// Load builds the configuration in three layers: built-in defaults, an
// optional YAML file, then DOCCHAT_* environment variables. A .env file
// in the working directory is loaded first so it can feed the env layer.
//
// The YAML path comes from DOCCHAT_CONFIG, falling back to ./config.yaml
// when that file exists.
func Load() (Config, error) {
	// Missing .env is fine; only report real read errors.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()

	path := os.Getenv("DOCCHAT_CONFIG")
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	envString("DOCCHAT_GROQ_API_KEY", &cfg.Groq.APIKey)
	if cfg.Groq.APIKey == "" {
		envString("GROQ_API_KEY", &cfg.Groq.APIKey)
	}
	envString("DOCCHAT_GROQ_BASE_URL", &cfg.Groq.BaseURL)
	envString("DOCCHAT_GROQ_MODEL", &cfg.Groq.Model)

	envInt("DOCCHAT_PORT", &cfg.Server.Port)
	envInt("DOCCHAT_MAX_CONNS", &cfg.Server.MaxConns)
	if raw := os.Getenv("DOCCHAT_ALLOWED_ORIGINS"); raw != "" {
		var origins []string
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}

	envString("DOCCHAT_DATA_DIR", &cfg.Storage.DataDir)
	envString("DOCCHAT_DOCS_DIR", &cfg.Storage.DocsDir)

	envInt("DOCCHAT_CHUNK_WINDOW", &cfg.Chunker.WindowWords)
	envInt("DOCCHAT_CHUNK_OVERLAP", &cfg.Chunker.OverlapWords)

	envInt("DOCCHAT_RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	envFloat("DOCCHAT_RETRIEVAL_MIN_SCORE", &cfg.Retrieval.MinScore)

	envString("DOCCHAT_DECLINE_REPLY", &cfg.Chat.DeclineReply)
	envInt("DOCCHAT_COMPLETION_TIMEOUT_SECS", &cfg.Chat.CompletionTimeoutS)

	envString("DOCCHAT_LOG_LEVEL", &cfg.Log.Level)
}

func validate(cfg Config) error {
	if cfg.Groq.APIKey == "" {
		return errors.New("missing required config: Groq API key. Set DOCCHAT_GROQ_API_KEY or GROQ_API_KEY")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Chunker.WindowWords <= 0 {
		return fmt.Errorf("chunker.window_words must be positive, got %d", cfg.Chunker.WindowWords)
	}
	if cfg.Chunker.OverlapWords < 0 || cfg.Chunker.OverlapWords >= cfg.Chunker.WindowWords {
		return fmt.Errorf("chunker.overlap_words %d must be in [0, window_words)", cfg.Chunker.OverlapWords)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MinScore < 0 {
		return fmt.Errorf("retrieval.min_score must not be negative, got %g", cfg.Retrieval.MinScore)
	}
	if cfg.Chat.CompletionTimeoutS <= 0 {
		return fmt.Errorf("chat.completion_timeout_secs must be positive, got %d", cfg.Chat.CompletionTimeoutS)
	}
	return nil
}
