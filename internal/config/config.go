package config

import "fmt"

type Config struct {
	Server    ServerConfig
	Gemini    GeminiConfig
	Auth      AuthConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type GeminiConfig struct {
	APIKey     string
	ChatModel  string
	EmbedModel string
}

// AuthConfig points at the external auth service that issues user sessions.
// When BaseURL is empty the server accepts any bearer token, which is only
// meant for local development.
type AuthConfig struct {
	BaseURL string
	AnonKey string
}

type StorageConfig struct {
	DataDir string
}

type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8787,
		},
		Gemini: GeminiConfig{
			ChatModel:  "gemini-1.5-flash",
			EmbedModel: "text-embedding-004",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   30,
			WindowSeconds: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/nabd/config.json, then applies NABD_* environment
// variable overrides. Secrets are env-only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Gemini API key. Set it via environment variable NABD_GEMINI_API_KEY or GEMINI_API_KEY")
	}

	return cfg, nil
}
