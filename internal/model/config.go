package model

import (
	"fmt"
	"runtime"
	"time"
)

// Config holds every tunable of an audit run
type Config struct {
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths" toml:"paths"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract" toml:"extract"`
	Resolve    ResolveConfig    `yaml:"resolve" mapstructure:"resolve" toml:"resolve"`
	Adjudicate AdjudicateConfig `yaml:"adjudicate" mapstructure:"adjudicate" toml:"adjudicate"`
	Rewrite    RewriteConfig    `yaml:"rewrite" mapstructure:"rewrite" toml:"rewrite"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm" toml:"llm"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache" toml:"cache"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output" toml:"output"`
}

// PathsConfig locates inputs and outputs
type PathsConfig struct {
	ReviewsDir string `yaml:"reviews_dir" mapstructure:"reviews_dir" toml:"reviews_dir"`
	SourcesDir string `yaml:"sources_dir" mapstructure:"sources_dir" toml:"sources_dir"`
	OutputDir  string `yaml:"output_dir" mapstructure:"output_dir" toml:"output_dir"`
}

// ExtractConfig controls document extraction
type ExtractConfig struct {
	Workers int           `yaml:"workers" mapstructure:"workers" toml:"workers"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" toml:"timeout"` // Per document
}

// ResolveConfig controls source matching and passage retrieval
type ResolveConfig struct {
	MinMatchScore float64       `yaml:"min_match_score" mapstructure:"min_match_score" toml:"min_match_score"` // Fuzzy source match cutoff in [0,1]
	TopK          int           `yaml:"top_k" mapstructure:"top_k" toml:"top_k"`
	ChunkWords    int           `yaml:"chunk_words" mapstructure:"chunk_words" toml:"chunk_words"`
	ChunkStride   int           `yaml:"chunk_stride" mapstructure:"chunk_stride" toml:"chunk_stride"`
	Workers       int           `yaml:"workers" mapstructure:"workers" toml:"workers"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" toml:"timeout"` // Per claim
}

// AdjudicateConfig controls the support policy
type AdjudicateConfig struct {
	Scorer    string        `yaml:"scorer" mapstructure:"scorer" toml:"scorer"`       // "lexical" or "llm"
	Threshold float64       `yaml:"threshold" mapstructure:"threshold" toml:"threshold"` // Fixed support cutoff
	Margin    float64       `yaml:"margin" mapstructure:"margin" toml:"margin"`       // Scores within this distance of the cutoff are flagged ambiguous
	Workers   int           `yaml:"workers" mapstructure:"workers" toml:"workers"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout" toml:"timeout"` // Per scoring call
}

// RewriteConfig controls the rewrite proposer
type RewriteConfig struct {
	MinEvidenceScore float64 `yaml:"min_evidence_score" mapstructure:"min_evidence_score" toml:"min_evidence_score"` // Nearest-miss floor below which no rewrite is attempted
	UseLLM           bool    `yaml:"use_llm" mapstructure:"use_llm" toml:"use_llm"`
}

// LLMConfig configures the optional learned scorer and rewriter
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider" toml:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model             string  `yaml:"model" mapstructure:"model" toml:"model"`
	APIKey            string  `yaml:"-" mapstructure:"api_key" toml:"-"`
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url" toml:"base_url,omitempty"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout" toml:"timeout"` // seconds
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens" toml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst" toml:"burst"`
	HTTPProxy         string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy" toml:"http_proxy,omitempty"`
	HTTPSProxy        string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy" toml:"https_proxy,omitempty"`
}

// CacheConfig controls the extraction and scoring cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled" toml:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir" toml:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl" toml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl" toml:"disk_ttl"`
}

// OutputConfig controls console output
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose" toml:"verbose"`
	Color   bool `yaml:"color" mapstructure:"color" toml:"color"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	workers := runtime.NumCPU()
	return &Config{
		Paths: PathsConfig{
			ReviewsDir: "reviews",
			SourcesDir: "sources",
			OutputDir:  "citeaudit-out",
		},
		Extract: ExtractConfig{
			Workers: workers,
			Timeout: 60 * time.Second,
		},
		Resolve: ResolveConfig{
			MinMatchScore: 0.6,
			TopK:          5,
			ChunkWords:    180,
			ChunkStride:   90,
			Workers:       workers,
			Timeout:       30 * time.Second,
		},
		Adjudicate: AdjudicateConfig{
			Scorer:    "lexical",
			Threshold: 0.6,
			Margin:    0.05,
			Workers:   workers,
			Timeout:   30 * time.Second,
		},
		Rewrite: RewriteConfig{
			MinEvidenceScore: 0.2,
		},
		LLM: LLMConfig{
			Timeout:           30,
			MaxTokens:         400,
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".citeaudit-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Output: OutputConfig{
			Color: true,
		},
	}
}

// Validate checks values that would make every stage meaningless
func (c *Config) Validate() error {
	if c.Adjudicate.Threshold <= 0 || c.Adjudicate.Threshold > 1 {
		return fmt.Errorf("adjudicate.threshold must be in (0,1], got %v", c.Adjudicate.Threshold)
	}
	if c.Adjudicate.Margin < 0 {
		return fmt.Errorf("adjudicate.margin must be >= 0, got %v", c.Adjudicate.Margin)
	}
	if c.Resolve.MinMatchScore < 0 || c.Resolve.MinMatchScore > 1 {
		return fmt.Errorf("resolve.min_match_score must be in [0,1], got %v", c.Resolve.MinMatchScore)
	}
	if c.Resolve.TopK <= 0 {
		return fmt.Errorf("resolve.top_k must be positive, got %d", c.Resolve.TopK)
	}
	if c.Resolve.ChunkWords <= 0 || c.Resolve.ChunkStride <= 0 {
		return fmt.Errorf("resolve.chunk_words and resolve.chunk_stride must be positive")
	}
	switch c.Adjudicate.Scorer {
	case "lexical":
	case "llm":
		if c.LLM.Provider == "" {
			return fmt.Errorf("adjudicate.scorer is llm but llm.provider is empty")
		}
	default:
		return fmt.Errorf("unknown adjudicate.scorer: %s (supported: lexical, llm)", c.Adjudicate.Scorer)
	}
	if c.Rewrite.UseLLM && c.LLM.Provider == "" {
		return fmt.Errorf("rewrite.use_llm is set but llm.provider is empty")
	}
	return nil
}
