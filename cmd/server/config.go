package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/MegaGrindStone/rag-web-ui/internal/services"
	"github.com/MegaGrindStone/rag-web-ui/internal/session"
	"gopkg.in/yaml.v3"
)

// answererConfig builds the answerer of global-scope questions. A nil answerer means the RAG backend
// answers them too.
type answererConfig interface {
	answerer(systemPrompt string, logger *slog.Logger) (session.Answerer, error)
}

// BaseLLMConfig contains the common fields for all direct LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	Parameters services.LLMParameters `yaml:"parameters"`
}

type config struct {
	Port           string                `yaml:"port"`
	LogLevel       string                `yaml:"logLevel"`
	DBPath         string                `yaml:"dbPath"`
	Backend        backendConfig         `yaml:"backend"`
	RequestTimeout time.Duration         `yaml:"requestTimeout"`
	SessionTTL     time.Duration         `yaml:"sessionTTL"`
	History        session.HistoryPolicy `yaml:"history"`
	SystemPrompt   string                `yaml:"systemPrompt"`
	Answerer       answererConfig        `yaml:"answerer"`
}

type backendConfig struct {
	BaseURL string `yaml:"baseURL"`
}

type ragConfig struct{}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

const (
	defaultPort           = "8080"
	defaultBackendURL     = "http://127.0.0.1:8000"
	defaultRequestTimeout = 60 * time.Second
	defaultSessionTTL     = time.Hour
)

func defaultConfig() config {
	return config{
		Port:           defaultPort,
		LogLevel:       "info",
		Backend:        backendConfig{BaseURL: defaultBackendURL},
		RequestTimeout: defaultRequestTimeout,
		SessionTTL:     defaultSessionTTL,
		History:        session.HistoryAll,
		Answerer:       ragConfig{},
	}
}

// loadConfig decodes the YAML configuration in r over the defaults. Secrets and hosts left empty fall
// back to environment variables.
func loadConfig(r io.Reader) (config, error) {
	cfg := defaultConfig()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config: %w", err)
	}

	if url := os.Getenv("RAG_BACKEND_URL"); url != "" {
		cfg.Backend.BaseURL = url
	}

	switch cfg.History {
	case session.HistoryAll, session.HistoryScope:
	default:
		return config{}, fmt.Errorf("unknown history policy: %s", cfg.History)
	}
	if cfg.Backend.BaseURL == "" {
		return config{}, fmt.Errorf("backend baseURL is required")
	}
	if cfg.RequestTimeout < 0 {
		return config{}, fmt.Errorf("requestTimeout must not be negative")
	}

	return cfg, nil
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port           string                `yaml:"port"`
		LogLevel       string                `yaml:"logLevel"`
		DBPath         string                `yaml:"dbPath"`
		Backend        backendConfig         `yaml:"backend"`
		RequestTimeout *time.Duration        `yaml:"requestTimeout"`
		SessionTTL     *time.Duration        `yaml:"sessionTTL"`
		History        session.HistoryPolicy `yaml:"history"`
		SystemPrompt   string                `yaml:"systemPrompt"`
		Answerer       map[string]any        `yaml:"answerer"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.LogLevel != "" {
		c.LogLevel = rawConfig.LogLevel
	}
	if rawConfig.DBPath != "" {
		c.DBPath = rawConfig.DBPath
	}
	if rawConfig.Backend.BaseURL != "" {
		c.Backend = rawConfig.Backend
	}
	if rawConfig.RequestTimeout != nil {
		c.RequestTimeout = *rawConfig.RequestTimeout
	}
	if rawConfig.SessionTTL != nil {
		c.SessionTTL = *rawConfig.SessionTTL
	}
	if rawConfig.History != "" {
		c.History = rawConfig.History
	}
	c.SystemPrompt = rawConfig.SystemPrompt

	if rawConfig.Answerer == nil {
		return nil
	}

	provider, ok := rawConfig.Answerer["provider"].(string)
	if !ok {
		return fmt.Errorf("answerer provider is required")
	}

	answererRawYAML, err := yaml.Marshal(rawConfig.Answerer)
	if err != nil {
		return err
	}

	var answerer answererConfig
	switch provider {
	case "rag":
		c.Answerer = ragConfig{}
		return nil
	case "openai":
		answerer = &openAIConfig{}
	case "openrouter":
		answerer = &openRouterConfig{}
	case "ollama":
		answerer = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown answerer provider: %s", provider)
	}

	if err := yaml.Unmarshal(answererRawYAML, answerer); err != nil {
		return err
	}

	c.Answerer = answerer

	return nil
}

func (ragConfig) answerer(string, *slog.Logger) (session.Answerer, error) {
	return nil, nil
}

func (o openAIConfig) answerer(systemPrompt string, logger *slog.Logger) (session.Answerer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey is required")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, o.Parameters, logger), nil
}

func (o openRouterConfig) answerer(systemPrompt string, logger *slog.Logger) (session.Answerer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey is required")
	}
	return services.NewOpenRouter(apiKey, o.BaseURL, o.Model, systemPrompt, o.Parameters, logger), nil
}

func (o ollamaConfig) answerer(systemPrompt string, logger *slog.Logger) (session.Answerer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	return services.NewOllama(host, o.Model, systemPrompt, o.Parameters, logger)
}

func (c config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
