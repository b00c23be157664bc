package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel      string `yaml:"log_level"`
	Development   bool   `yaml:"development"`
	MaxConcurrent int    `yaml:"max_concurrent"`

	LLM struct {
		Provider         string        `yaml:"provider"`
		BaseURL          string        `yaml:"base_url"`
		APIKey           string        `yaml:"api_key"`
		Model            string        `yaml:"model"`
		MaxTokens        int           `yaml:"max_tokens"`
		Temperature      float32       `yaml:"temperature"`
		MaxContextTokens int           `yaml:"max_context_tokens"`
		OutputReserve    int           `yaml:"output_reserve"`
		RequestTimeout   time.Duration `yaml:"request_timeout"`
	} `yaml:"llm"`

	Generation struct {
		MaxRounds   int           `yaml:"max_rounds"`
		ToolTimeout time.Duration `yaml:"tool_timeout"`
	} `yaml:"generation"`

	Store struct {
		Backend   string `yaml:"backend"` // memory | redis
		RedisAddr string `yaml:"redis_addr"`
		RedisDB   int    `yaml:"redis_db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"store"`

	Server struct {
		Addr        string `yaml:"addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`

	Sweeper struct {
		Schedule      string        `yaml:"schedule"`
		DefaultWindow time.Duration `yaml:"default_window"`
	} `yaml:"sweeper"`
}

// Load reads YAML config from path, applying defaults first and environment
// overrides last. A missing file is not an error; defaults are written back
// so the operator has something to edit.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{
		LogLevel:      "info",
		MaxConcurrent: 4,
	}
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.LLM.RequestTimeout = 60 * time.Second
	cfg.Generation.MaxRounds = 3
	cfg.Generation.ToolTimeout = 15 * time.Second
	cfg.Store.Backend = "memory"
	cfg.Store.RedisAddr = "localhost:6379"
	cfg.Store.KeyPrefix = "dialogue:"
	cfg.Server.Addr = ":8080"
	cfg.Server.MetricsAddr = ":9090"
	cfg.Sweeper.Schedule = "0 * * * * *"
	cfg.Sweeper.DefaultWindow = 30 * time.Minute
	return cfg
}

// applyEnv gives environment variables the highest precedence.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DIALOGUE_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.Backend = "redis"
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.RedisDB = db
		}
	}
	if v := os.Getenv("DIALOGUE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DIALOGUE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func writeDefaults(path string, cfg *Config) error {
	return Save(path, cfg)
}

// Save writes the config as YAML, atomically, creating the parent directory
// if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked down to their last four
// characters, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.LLM.APIKey = mask(c.LLM.APIKey)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return "***" + s[len(s)-4:]
}
