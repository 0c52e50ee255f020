package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every subsystem's settings.
type Config struct {
	Server   ServerConfig
	Agent    AgentConfig
	Upstream UpstreamConfig
	Speech   SpeechConfig
	Maps     MapsConfig
	Triage   TriageConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	upstream, err := loadUpstreamConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	triageCfg, err := loadTriageConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Agent:    agent,
		Upstream: upstream,
		Speech:   speech,
		Maps:     loadMapsConfig(),
		Triage:   triageCfg,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AgentConfig describes the local triage model.
type AgentConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Stream      bool
}

// Enabled reports whether the required model credentials are present.
func (c AgentConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a chat model instance from the configuration.
func (c AgentConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("agent model credentials missing: provide ARK_API_KEY + AGENT_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAgentConfig() (AgentConfig, error) {
	temperature, err := parseOptionalFloatEnv("AGENT_TEMPERATURE")
	if err != nil {
		return AgentConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AGENT_TOP_P")
	if err != nil {
		return AgentConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AGENT_MAX_TOKENS")
	if err != nil {
		return AgentConfig{}, err
	}

	stream, err := parseBoolEnv("AGENT_STREAM", true)
	if err != nil {
		return AgentConfig{}, err
	}

	return AgentConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("AGENT_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}, nil
}

// UpstreamConfig describes the remote triage backend used when no local
// model is configured.
type UpstreamConfig struct {
	BaseURL        string
	TimeoutSeconds int
	MaxRetries     int
}

// Enabled reports whether a remote backend is configured.
func (c UpstreamConfig) Enabled() bool {
	return c.BaseURL != ""
}

func loadUpstreamConfig() (UpstreamConfig, error) {
	timeout := 15
	if override, err := parseOptionalIntEnv("UPSTREAM_TIMEOUT"); err != nil {
		return UpstreamConfig{}, err
	} else if override != nil {
		timeout = *override
	}

	retries := 3
	if override, err := parseOptionalIntEnv("UPSTREAM_MAX_RETRIES"); err != nil {
		return UpstreamConfig{}, err
	} else if override != nil {
		if *override < 1 {
			retries = 1
		} else {
			retries = *override
		}
	}

	return UpstreamConfig{
		BaseURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL")), "/"),
		TimeoutSeconds: timeout,
		MaxRetries:     retries,
	}, nil
}

// SpeechConfig describes the hosted voice vendor.
type SpeechConfig struct {
	APIKey         string
	VoiceID        string
	ModelID        string
	OutputFormat   string
	TimeoutSeconds int
	Enabled        bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout := 30
	if override, err := parseOptionalIntEnv("SPEECH_TIMEOUT"); err != nil {
		return SpeechConfig{}, err
	} else if override != nil {
		timeout = *override
	}

	apiKey := strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY"))

	return SpeechConfig{
		APIKey:         apiKey,
		VoiceID:        getEnvOrDefault("ELEVENLABS_VOICE_ID", ""),
		ModelID:        getEnvOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		OutputFormat:   getEnvOrDefault("ELEVENLABS_OUTPUT_FORMAT", "mp3_44100_128"),
		TimeoutSeconds: timeout,
		Enabled:        apiKey != "",
	}, nil
}

// MapsConfig describes the places backend for hospital search.
type MapsConfig struct {
	APIKey   string
	RadiusKm float64
	Enabled  bool
}

func loadMapsConfig() MapsConfig {
	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY"))

	radius := 10.0
	if raw := strings.TrimSpace(os.Getenv("MAPS_RADIUS_KM")); raw != "" {
		if val, err := strconv.ParseFloat(raw, 64); err == nil && val > 0 && val <= 50 {
			radius = val
		}
	}

	return MapsConfig{
		APIKey:   apiKey,
		RadiusKm: radius,
		Enabled:  apiKey != "",
	}
}

// TriageConfig carries the dialogue policy knobs.
type TriageConfig struct {
	// MaxExchanges bounds the number of clarifying rounds before the agent
	// must deliver a final assessment. Tuned by trial, not derived.
	MaxExchanges int
	QueueLimit   int
}

func loadTriageConfig() (TriageConfig, error) {
	maxExchanges := 3
	if override, err := parseOptionalIntEnv("TRIAGE_MAX_EXCHANGES"); err != nil {
		return TriageConfig{}, err
	} else if override != nil {
		if *override < 1 {
			maxExchanges = 1
		} else {
			maxExchanges = *override
		}
	}

	queueLimit := 32
	if override, err := parseOptionalIntEnv("TRIAGE_QUEUE_LIMIT"); err != nil {
		return TriageConfig{}, err
	} else if override != nil && *override > 0 {
		queueLimit = *override
	}

	return TriageConfig{MaxExchanges: maxExchanges, QueueLimit: queueLimit}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
