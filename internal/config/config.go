package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Search SearchConfig `mapstructure:"search"`
	Mail   MailConfig   `mapstructure:"mail"`
	Images ImagesConfig `mapstructure:"images"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Jobs   JobsConfig   `mapstructure:"jobs"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Site   SiteConfig   `mapstructure:"site"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Port string    `mapstructure:"port"`
	TLS  TLSConfig `mapstructure:"tls"`
}

// TLSConfig holds TLS-specific configuration.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// DBConfig holds database-specific configuration.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SearchConfig holds the connection settings for the hosted search index.
// When Enabled is false the service runs without a search mirror, which is
// the normal mode for local development.
type SearchConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Addresses     []string `mapstructure:"addresses"`
	APIKey        string   `mapstructure:"api_key"`
	ArticleIndex  string   `mapstructure:"article_index"`
	AuthorIndex   string   `mapstructure:"author_index"`
	CategoryIndex string   `mapstructure:"category_index"`
}

// MailConfig groups the subscriber-platform API settings and the outbound
// SMTP settings used for newsletter delivery.
type MailConfig struct {
	Platform PlatformConfig `mapstructure:"platform"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

// PlatformConfig holds credentials for the hosted email-marketing API.
type PlatformConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	PublicationID string `mapstructure:"publication_id"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// ImagesConfig holds settings for the hosted image CDN used by the
// editor upload proxy and for article thumbnails.
type ImagesConfig struct {
	UploadURL    string `mapstructure:"upload_url"`
	APIKey       string `mapstructure:"api_key"`
	Folder       string `mapstructure:"folder"`
	DefaultThumb string `mapstructure:"default_thumb"`
}

// CacheConfig holds the settings for the SQLite read cache.
type CacheConfig struct {
	FilePath string        `mapstructure:"file_path"`
	FeedTTL  time.Duration `mapstructure:"feed_ttl"`
}

// JobsConfig holds the intervals for the background sweeper.
type JobsConfig struct {
	PublishInterval    time.Duration `mapstructure:"publish_interval"`
	NewsletterInterval time.Duration `mapstructure:"newsletter_interval"`
	SyncInterval       time.Duration `mapstructure:"sync_interval"`
	RetryInterval      time.Duration `mapstructure:"retry_interval"`
}

// AuthConfig maps API keys to authorization subjects. Requests without a
// recognized key are treated as anonymous.
type AuthConfig struct {
	ModelPath string            `mapstructure:"model_path"`
	APIKeys   map[string]string `mapstructure:"api_keys"`
}

// SiteConfig holds the public-facing URLs used in feeds and emails.
type SiteConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	RSSLimit int    `mapstructure:"rss_limit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // e.g., "json", "console"
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("db.dsn", "cms:cms@tcp(localhost:3306)/cms?parseTime=true")
	viper.SetDefault("search.enabled", false)
	viper.SetDefault("search.article_index", "articles")
	viper.SetDefault("search.author_index", "authors")
	viper.SetDefault("search.category_index", "categories")
	viper.SetDefault("mail.platform.base_url", "https://api.beehiiv.com/v2")
	viper.SetDefault("mail.smtp.port", 587)
	viper.SetDefault("images.folder", "article_content")
	viper.SetDefault("images.default_thumb", "v1734517759/article_cover_default")
	viper.SetDefault("cache.file_path", "cache.db")
	viper.SetDefault("cache.feed_ttl", 5*time.Minute)
	viper.SetDefault("jobs.publish_interval", time.Minute)
	viper.SetDefault("jobs.newsletter_interval", time.Minute)
	viper.SetDefault("jobs.sync_interval", 5*time.Minute)
	viper.SetDefault("jobs.retry_interval", 10*time.Minute)
	viper.SetDefault("auth.model_path", "auth_model.conf")
	viper.SetDefault("site.base_url", "http://localhost:8080")
	viper.SetDefault("site.rss_limit", 10)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	// Set up viper to read from config file
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/go-research-cms/")

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		// Config file not found; proceed with defaults and env vars
	}

	// Set up viper to read from environment variables
	viper.SetEnvPrefix("CMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Unmarshal the config into the Config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
