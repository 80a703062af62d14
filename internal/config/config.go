// Package config holds the explicit configuration passed to every pipeline stage.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

const DefaultPoolSize = 4

type Config struct {
	LogLevel    string `yaml:"log_level"`
	MetricsFile string `yaml:"metrics_file"`

	Fetch      FetchConfig      `yaml:"fetch"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Analyze    AnalyzeConfig    `yaml:"analyze"`
	Report     ReportConfig     `yaml:"report"`
}

type FetchConfig struct {
	SourceURL   string `yaml:"source_url"`
	APIKey      string `yaml:"api_key"`
	TargetCount int    `yaml:"target_count"`
	OutputPath  string `yaml:"output_path"`
	// PageParam is the query parameter carrying the 1-based page number.
	// Empty sends identical requests and relies on MaxPages alone.
	PageParam string        `yaml:"page_param"`
	MaxPages  int           `yaml:"max_pages"`
	Timeout   time.Duration `yaml:"timeout"` // 0 = no timeout
}

type TranscribeConfig struct {
	Provider     string        `yaml:"provider"` // assemblyai | aws
	Directory    string        `yaml:"directory"`
	Extension    string        `yaml:"extension"`
	LanguageCode string        `yaml:"language_code"`
	DualChannel  bool          `yaml:"dual_channel"`
	OutputPath   string        `yaml:"output_path"`
	PoolSize     int           `yaml:"pool_size"`
	PollInterval time.Duration `yaml:"poll_interval"`

	AssemblyAI AssemblyAIConfig `yaml:"assemblyai"`
	AWS        AWSConfig        `yaml:"aws"`
}

type AssemblyAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AWSConfig struct {
	Region string `yaml:"region"`
	Bucket string `yaml:"bucket"`
	// MaxSpeakers bounds speaker labelling when dual-channel is off.
	MaxSpeakers int `yaml:"max_speakers"`
}

type AnalyzeConfig struct {
	InputPath  string        `yaml:"input_path"`
	OutputPath string        `yaml:"output_path"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	ModelID    string        `yaml:"model_id"`
	MaxTokens  int           `yaml:"max_tokens"`
	PoolSize   int           `yaml:"pool_size"`
	Timeout    time.Duration `yaml:"timeout"` // 0 = no timeout
}

type ReportConfig struct {
	InputPath  string `yaml:"input_path"`
	OutputPath string `yaml:"output_path"`
}

// Default returns the settings the pipeline runs with when nothing is configured.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Fetch: FetchConfig{
			TargetCount: 100,
			OutputPath:  "chats.json",
			PageParam:   "page",
			MaxPages:    1000,
		},
		Transcribe: TranscribeConfig{
			Provider:     "assemblyai",
			Directory:    "calls",
			Extension:    ".wav",
			LanguageCode: "uk",
			DualChannel:  true,
			OutputPath:   "transcripts.json",
			PoolSize:     DefaultPoolSize,
			PollInterval: 3 * time.Second,
			AssemblyAI:   AssemblyAIConfig{BaseURL: "https://api.assemblyai.com"},
			AWS:          AWSConfig{Region: "us-east-1", MaxSpeakers: 2},
		},
		Analyze: AnalyzeConfig{
			InputPath:  "chats.json",
			OutputPath: "output_GPT_chat.json",
			BaseURL:    "https://api.openai.com/v1",
			ModelID:    "gpt-3.5-turbo-1106",
			MaxTokens:  2000,
			PoolSize:   DefaultPoolSize,
		},
		Report: ReportConfig{
			InputPath:  "output_GPT_chat.json",
			OutputPath: "report.xlsx",
		},
	}
}

// Load layers defaults, an optional YAML file, .env and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load() // loads .env when present

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Fetch.SourceURL, "CHAT_SOURCE_URL")
	setString(&c.Fetch.APIKey, "CHAT_SOURCE_API_KEY")
	setString(&c.Analyze.APIKey, "OPENAI_API_KEY")
	setString(&c.Analyze.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Analyze.ModelID, "LLM_MODEL")
	setString(&c.Transcribe.AssemblyAI.APIKey, "ASSEMBLYAI_API_KEY")
	setString(&c.Transcribe.Provider, "TRANSCRIBE_PROVIDER")
	setString(&c.Transcribe.AWS.Region, "AWS_REGION")
	setString(&c.Transcribe.AWS.Bucket, "TRANSCRIBE_BUCKET")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.MetricsFile, "METRICS_FILE")

	if err := setInt(&c.Fetch.TargetCount, "DIALOG_COUNT"); err != nil {
		return err
	}
	var pool int
	if err := setInt(&pool, "POOL_SIZE"); err != nil {
		return err
	}
	if pool != 0 {
		c.Transcribe.PoolSize = pool
		c.Analyze.PoolSize = pool
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}

func (f FetchConfig) Validate() error {
	if f.SourceURL == "" {
		return fmt.Errorf("%w: fetch.source_url is required", ErrInvalid)
	}
	if f.TargetCount <= 0 {
		return fmt.Errorf("%w: fetch.target_count must be > 0, got %d", ErrInvalid, f.TargetCount)
	}
	if f.OutputPath == "" {
		return fmt.Errorf("%w: fetch.output_path is required", ErrInvalid)
	}
	if f.MaxPages <= 0 {
		return fmt.Errorf("%w: fetch.max_pages must be > 0", ErrInvalid)
	}
	return nil
}

func (t TranscribeConfig) Validate() error {
	if t.Directory == "" || t.OutputPath == "" {
		return fmt.Errorf("%w: transcribe.directory and transcribe.output_path are required", ErrInvalid)
	}
	if t.PoolSize <= 0 {
		return fmt.Errorf("%w: transcribe.pool_size must be > 0", ErrInvalid)
	}
	switch t.Provider {
	case "assemblyai":
		if t.AssemblyAI.APIKey == "" {
			return fmt.Errorf("%w: transcribe.assemblyai.api_key is required", ErrInvalid)
		}
	case "aws":
		if t.AWS.Bucket == "" {
			return fmt.Errorf("%w: transcribe.aws.bucket is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown transcribe.provider %q", ErrInvalid, t.Provider)
	}
	return nil
}

func (a AnalyzeConfig) Validate() error {
	if a.APIKey == "" {
		return fmt.Errorf("%w: analyze.api_key is required", ErrInvalid)
	}
	if a.ModelID == "" {
		return fmt.Errorf("%w: analyze.model_id is required", ErrInvalid)
	}
	if a.InputPath == "" || a.OutputPath == "" {
		return fmt.Errorf("%w: analyze.input_path and analyze.output_path are required", ErrInvalid)
	}
	if a.PoolSize <= 0 {
		return fmt.Errorf("%w: analyze.pool_size must be > 0", ErrInvalid)
	}
	return nil
}

func (r ReportConfig) Validate() error {
	if r.InputPath == "" || r.OutputPath == "" {
		return fmt.Errorf("%w: report.input_path and report.output_path are required", ErrInvalid)
	}
	return nil
}
