package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig selects the streaming transport.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
}

type GeminiConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
	// APIKey switches the client to the Gemini Developer API instead of Vertex AI.
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// ProModel serves comprehensive analysis, pathway guidance and summaries.
	ProModel string `mapstructure:"pro_model"`
	// DatastoreLocation is the Vertex AI Search location holding the corpora.
	DatastoreLocation string `mapstructure:"datastore_location"`
}

type OpenAIConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	APIEndpoint    string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	DeploymentName string `mapstructure:"deployment"`
	APIVersion     string `mapstructure:"api_version"`
}

// GenerationConfig is one model call profile.
type GenerationConfig struct {
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	// ThinkingBudget of 0 leaves the thinking config unset.
	ThinkingBudget int `mapstructure:"thinking_budget"`
	// CitationTitle names retrieved sources that carry no title.
	CitationTitle string `mapstructure:"citation_title"`
}

type AnalysisConfig struct {
	Realtime      GenerationConfig `mapstructure:"realtime"`
	Comprehensive GenerationConfig `mapstructure:"comprehensive"`
	Pathway       GenerationConfig `mapstructure:"pathway"`
	Summary       GenerationConfig `mapstructure:"summary"`

	PreviewChars     int  `mapstructure:"preview_chars"`
	RepairTrimLimit  int  `mapstructure:"repair_trim_limit"`
	DedupeByPosition bool `mapstructure:"dedupe_by_position"`
	// AcceptEmptyRepair lets truncation repair count {} as a recovered record.
	AcceptEmptyRepair bool `mapstructure:"accept_empty_repair"`
}

type PromptsConfig struct {
	// Path to a YAML catalog replacing the embedded one.
	Path string `mapstructure:"path"`
}

// LoadConfig reads configuration from an optional YAML file and ANALYZER_*
// environment variables. An empty path searches for config.yaml in the
// working directory.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("llm.provider", "gemini")

	v.SetDefault("gemini.project", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.location", "us-central1")
	v.SetDefault("gemini.datastore_location", "us")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.pro_model", "gemini-2.5-pro")

	v.SetDefault("openai.provider", "openai")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.endpoint", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.deployment", "gpt-4o")
	v.SetDefault("openai.api_version", "2023-05-15")

	v.SetDefault("analysis.realtime.temperature", 0.0)
	v.SetDefault("analysis.realtime.max_output_tokens", 2048)
	v.SetDefault("analysis.realtime.thinking_budget", 0)
	v.SetDefault("analysis.realtime.citation_title", "Clinical Manual")
	v.SetDefault("analysis.comprehensive.temperature", 0.3)
	v.SetDefault("analysis.comprehensive.max_output_tokens", 4096)
	v.SetDefault("analysis.comprehensive.thinking_budget", 0)
	v.SetDefault("analysis.comprehensive.citation_title", "EBT Manual")
	v.SetDefault("analysis.pathway.temperature", 0.2)
	v.SetDefault("analysis.pathway.max_output_tokens", 2048)
	v.SetDefault("analysis.pathway.thinking_budget", 24576)
	v.SetDefault("analysis.pathway.citation_title", "EBT Manual")
	v.SetDefault("analysis.summary.temperature", 0.3)
	v.SetDefault("analysis.summary.max_output_tokens", 4096)
	v.SetDefault("analysis.summary.thinking_budget", 16384)
	v.SetDefault("analysis.summary.citation_title", "Clinical Manual")
	v.SetDefault("analysis.preview_chars", 200)
	v.SetDefault("analysis.repair_trim_limit", 200)
	v.SetDefault("analysis.dedupe_by_position", true)
	v.SetDefault("analysis.accept_empty_repair", false)

	v.SetDefault("prompts.path", "")
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return eris.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}
	if c.Analysis.PreviewChars <= 0 {
		return eris.New("config: analysis.preview_chars must be positive")
	}
	if c.Analysis.RepairTrimLimit < 0 {
		return eris.New("config: analysis.repair_trim_limit must not be negative")
	}
	return nil
}

// InitLogger replaces the global zap logger according to cfg.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
