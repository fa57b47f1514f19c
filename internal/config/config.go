package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Callback Callback `toml:"callback"`
	Identity Identity `toml:"identity"`
	Gateway  Gateway  `toml:"gateway"`
	Model    Model    `toml:"model"`
	Database Database `toml:"database"`
	Observer Observer `toml:"observer"`
}

type Callback struct {
	Addr            string   `toml:"addr"`
	CompleteTimeout Duration `toml:"complete_timeout"`
}

type Identity struct {
	Provider     string   `toml:"provider"`
	Scopes       []string `toml:"scopes"`
	AuthorizeURL string   `toml:"authorize_url"`
	TokenURL     string   `toml:"token_url"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURL  string   `toml:"redirect_url"`
	WaitTimeout  Duration `toml:"wait_timeout"`
}

type Gateway struct {
	Endpoint     string `toml:"endpoint"`
	TokenURL     string `toml:"token_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

type Model struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

type Database struct {
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type Observer struct {
	Enabled bool `toml:"enabled"`
}

// Duration unmarshals TOML strings like "40s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Callback: Callback{
			Addr:            ":9090",
			CompleteTimeout: Duration(10 * time.Second),
		},
		Identity: Identity{
			Provider:    "google-drive",
			Scopes:      []string{"https://www.googleapis.com/auth/drive.file"},
			WaitTimeout: Duration(40 * time.Second),
		},
		Model: Model{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Database: Database{Path: "travelmate.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "travelmate.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("TRAVELMATE_CALLBACK_ADDR"); v != "" {
		cfg.Callback.Addr = v
	}
	if v := os.Getenv("TRAVELMATE_IDENTITY_CLIENT_ID"); v != "" {
		cfg.Identity.ClientID = v
	}
	if v := os.Getenv("TRAVELMATE_IDENTITY_CLIENT_SECRET"); v != "" {
		cfg.Identity.ClientSecret = v
	}
	if v := os.Getenv("TRAVELMATE_GATEWAY_ENDPOINT"); v != "" {
		cfg.Gateway.Endpoint = v
	}
	if v := os.Getenv("TRAVELMATE_GATEWAY_CLIENT_ID"); v != "" {
		cfg.Gateway.ClientID = v
	}
	if v := os.Getenv("TRAVELMATE_GATEWAY_CLIENT_SECRET"); v != "" {
		cfg.Gateway.ClientSecret = v
	}
	if v := os.Getenv("TRAVELMATE_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("TRAVELMATE_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("TRAVELMATE_AUTH_WAIT_TIMEOUT"); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Identity.WaitTimeout = Duration(dur)
		}
	}
	if v := os.Getenv("TRAVELMATE_OBSERVER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observer.Enabled = b
		}
	}

	// Fallbacks
	if cfg.Identity.RedirectURL == "" {
		cfg.Identity.RedirectURL = "http://localhost" + cfg.Callback.Addr + "/callback"
	}

	return cfg
}
