// Package config loads service configuration from a YAML file with
// environment-variable overrides. Every field has a default, so a missing
// or empty file yields a working local setup.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Ollama struct {
		BaseURL     string `yaml:"base_url"`
		LLMModel    string `yaml:"llm_model"`
		EmbedModel  string `yaml:"embed_model"`
		TimeoutSecs int    `yaml:"timeout"` // Per model/embedding invocation
	} `yaml:"ollama"`

	Storage struct {
		DataDir      string `yaml:"data_dir"`      // Per-asset vector indexes live here
		SessionDB    string `yaml:"session_db"`    // SQLite file for threads and history
		DocumentsDir string `yaml:"documents_dir"` // Drop folder for PDFs
		Watch        bool   `yaml:"watch"`         // Auto-ingest new files in DocumentsDir
	} `yaml:"storage"`

	Chunking struct {
		Size    int `yaml:"size"`
		Overlap int `yaml:"overlap"`
	} `yaml:"chunking"`

	Retrieval struct {
		TopK           int     `yaml:"top_k"`
		ScoreThreshold float64 `yaml:"score_threshold"`
	} `yaml:"retrieval"`

	Generation struct {
		// MaxSummaryInputChars bounds the text concatenated into one
		// summarization prompt; truncation happens at a chunk boundary.
		MaxSummaryInputChars int `yaml:"max_summary_input_chars"`
	} `yaml:"generation"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

// Defaults target a local Ollama setup: llama3 for generation, 1024/80
// chunking, k=20 retrieval above 0.1 similarity.
func defaults() Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Ollama.BaseURL = "http://localhost:11434"
	c.Ollama.LLMModel = "llama3"
	c.Ollama.EmbedModel = "nomic-embed-text"
	c.Ollama.TimeoutSecs = 120
	c.Storage.DataDir = "./db"
	c.Storage.SessionDB = "./chat_data.db"
	c.Storage.DocumentsDir = "./documents"
	c.Storage.Watch = true
	c.Chunking.Size = 1024
	c.Chunking.Overlap = 80
	c.Retrieval.TopK = 20
	c.Retrieval.ScoreThreshold = 0.1
	c.Generation.MaxSummaryInputChars = 24000
	c.Logging.Level = "info"
	return c
}

// Load reads the YAML file at path, applies env overrides, and validates.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets environment variables take precedence over file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("STUDYRAG_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("STUDYRAG_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("STUDYRAG_LLM_MODEL"); v != "" {
		cfg.Ollama.LLMModel = v
	}
	if v := os.Getenv("STUDYRAG_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := os.Getenv("STUDYRAG_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("STUDYRAG_SESSION_DB"); v != "" {
		cfg.Storage.SessionDB = v
	}
	if v := os.Getenv("STUDYRAG_DOCUMENTS_DIR"); v != "" {
		cfg.Storage.DocumentsDir = v
	}
	if v := os.Getenv("STUDYRAG_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Ollama.TimeoutSecs = secs
		}
	}
}

func (c Config) validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.ScoreThreshold < -1 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval.score_threshold must be a cosine score, got %g", c.Retrieval.ScoreThreshold)
	}
	if c.Ollama.TimeoutSecs <= 0 {
		return fmt.Errorf("ollama.timeout must be positive, got %d", c.Ollama.TimeoutSecs)
	}
	return nil
}
