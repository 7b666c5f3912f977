package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "NABD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.admin_token", typ: kString, env: "NABD_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "gemini.api_key", typ: kString, env: "NABD_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.chat_model", typ: kString, env: "NABD_GEMINI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.ChatModel },
	},
	{
		key: "gemini.embed_model", typ: kString, env: "NABD_GEMINI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.EmbedModel },
	},
	{
		key: "auth.base_url", typ: kString, env: "NABD_AUTH_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Auth.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.BaseURL },
	},
	{
		key: "auth.anon_key", typ: kString, env: "NABD_AUTH_ANON_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.AnonKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.AnonKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "NABD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "ratelimit.max_requests", typ: kInt, env: "NABD_RATELIMIT_MAX_REQUESTS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.MaxRequests = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.MaxRequests },
	},
	{
		key: "ratelimit.window_seconds", typ: kInt, env: "NABD_RATELIMIT_WINDOW_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.WindowSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.WindowSeconds },
	},
	{
		key: "log.level", typ: kString, env: "NABD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, v)
		case kInt:
			i, err := strconv.Atoi(v)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse %s=%q: %v. Using default value.\n", s.env, v, err)
				continue
			}
			s.apply(cfg, i)
		}
	}

	// GEMINI_API_KEY is the name the Google SDK documents, so honor it too.
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}
