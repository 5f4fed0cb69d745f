package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	Leads      LeadsConfig      `yaml:"leads" mapstructure:"leads"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Credits    CreditsConfig    `yaml:"credits" mapstructure:"credits"`
	Checkout   CheckoutConfig   `yaml:"checkout" mapstructure:"checkout"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SearchConfig configures how a drawn area is searched.
type SearchConfig struct {
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxPagesPerTile int     `yaml:"max_pages_per_tile" mapstructure:"max_pages_per_tile"`
	TileKM          float64 `yaml:"tile_km" mapstructure:"tile_km"`
	MaxTiles        int     `yaml:"max_tiles" mapstructure:"max_tiles"`
	LeadFilter      string  `yaml:"lead_filter" mapstructure:"lead_filter"`
	MaxSessions     int     `yaml:"max_sessions" mapstructure:"max_sessions"`
}

// ClassifyConfig points at an optional platform table file.
type ClassifyConfig struct {
	PlatformsFile string `yaml:"platforms_file" mapstructure:"platforms_file"`
}

// LeadsConfig configures the lead store.
type LeadsConfig struct {
	EmptyKeyPolicy string `yaml:"empty_key_policy" mapstructure:"empty_key_policy"`
}

// ExportConfig configures file export.
type ExportConfig struct {
	Filename string `yaml:"filename" mapstructure:"filename"`
	ExcelBOM bool   `yaml:"excel_bom" mapstructure:"excel_bom"`
}

// CreditsConfig configures search metering.
type CreditsConfig struct {
	FreeSearches   int    `yaml:"free_searches" mapstructure:"free_searches"`
	PackSize       int    `yaml:"pack_size" mapstructure:"pack_size"`
	DefaultAccount string `yaml:"default_account" mapstructure:"default_account"`
}

// CheckoutConfig holds hosted payment settings.
type CheckoutConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	PriceID    string `yaml:"price_id" mapstructure:"price_id"`
	SuccessURL string `yaml:"success_url" mapstructure:"success_url"`
	CancelURL  string `yaml:"cancel_url" mapstructure:"cancel_url"`
}

// StoreConfig configures the credit ledger database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	PlacesPerCall float64 `yaml:"places_per_call" mapstructure:"places_per_call"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("google.key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("search.rate_limit", 10)
	v.SetDefault("search.concurrency", 4)
	v.SetDefault("search.max_pages_per_tile", 3)
	v.SetDefault("search.tile_km", 5.0)
	v.SetDefault("search.max_tiles", 16)
	v.SetDefault("search.lead_filter", "all")
	v.SetDefault("search.max_sessions", 100)
	v.SetDefault("classify.platforms_file", "")
	v.SetDefault("leads.empty_key_policy", "unique")
	v.SetDefault("export.filename", "leads.csv")
	v.SetDefault("export.excel_bom", false)
	v.SetDefault("credits.free_searches", 3)
	v.SetDefault("credits.pack_size", 5)
	v.SetDefault("credits.default_account", "local")
	v.SetDefault("checkout.key", "")
	v.SetDefault("checkout.base_url", "https://api.stripe.com")
	v.SetDefault("checkout.price_id", "")
	v.SetDefault("checkout.success_url", "http://localhost:8080/api/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("checkout.cancel_url", "http://localhost:8080/?checkout=cancel")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadmap.db")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("pricing.places_per_call", 0.032)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command needs are present. Mode is
// one of "search", "checkout", "notion", "salesforce", or "serve".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch mode {
	case "search":
		if c.Google.Key == "" {
			missing = append(missing, "google.key (LEADMAP_GOOGLE_KEY)")
		}
	case "checkout":
		if c.Checkout.Key == "" {
			missing = append(missing, "checkout.key (LEADMAP_CHECKOUT_KEY)")
		}
		if c.Checkout.PriceID == "" {
			missing = append(missing, "checkout.price_id (LEADMAP_CHECKOUT_PRICE_ID)")
		}
	case "notion":
		if c.Notion.Token == "" {
			missing = append(missing, "notion.token (LEADMAP_NOTION_TOKEN)")
		}
		if c.Notion.LeadDB == "" {
			missing = append(missing, "notion.lead_db (LEADMAP_NOTION_LEAD_DB)")
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" {
			missing = append(missing, "salesforce.client_id (LEADMAP_SALESFORCE_CLIENT_ID)")
		}
		if c.Salesforce.Username == "" {
			missing = append(missing, "salesforce.username (LEADMAP_SALESFORCE_USERNAME)")
		}
		if c.Salesforce.KeyPath == "" {
			missing = append(missing, "salesforce.key_path (LEADMAP_SALESFORCE_KEY_PATH)")
		}
	case "serve":
		if c.Google.Key == "" {
			missing = append(missing, "google.key (LEADMAP_GOOGLE_KEY)")
		}
		if c.Server.Port <= 0 {
			return eris.Errorf("config: invalid server.port %d", c.Server.Port)
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if c.Search.Concurrency < 0 || c.Search.Concurrency > 64 {
		return eris.Errorf("config: search.concurrency must be between 1 and 64, got %d", c.Search.Concurrency)
	}
	if c.Credits.PackSize < 0 || c.Credits.FreeSearches < 0 {
		return eris.New("config: credits.pack_size and credits.free_searches must not be negative")
	}

	switch c.Search.LeadFilter {
	case "", "all", "no_genuine_website", "no_website":
	default:
		return eris.Errorf("config: invalid search.lead_filter %q", c.Search.LeadFilter)
	}
	switch c.Leads.EmptyKeyPolicy {
	case "", "unique", "drop":
	default:
		return eris.Errorf("config: invalid leads.empty_key_policy %q", c.Leads.EmptyKeyPolicy)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
