package config

import (
	"fmt"
	"time"
)

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	ListenAddress   string
	APIKey          string
	PublicURL       string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// OAuthConfig represents the Google OAuth client configuration
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	StateSecret  string
	StateTTL     time.Duration
	CookieSecure bool
	HTTPTimeout  time.Duration
}

// PolicyConfig represents the quarantine policy defaults
type PolicyConfig struct {
	Threshold        float64
	QuarantineLabel  string
	DefaultBatchSize int
	MaxBatchSize     int
}

// StoreConfig represents the key-value store configuration
type StoreConfig struct {
	Type          string
	DataDir       string
	SQLitePath    string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DigestConfig represents the SMTP digest delivery configuration
type DigestConfig struct {
	SMTPAddress string
	HELO        string
	Username    string
	Password    string
	From        string
	Subject     string
	Limit       int
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// GetServer returns the server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	readTimeout, err := c.GetDuration("server.read_timeout")
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid server read timeout: %w", err)
	}
	writeTimeout, err := c.GetDuration("server.write_timeout")
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid server write timeout: %w", err)
	}
	shutdownTimeout, err := c.GetDuration("server.shutdown_timeout")
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid server shutdown timeout: %w", err)
	}
	return ServerConfig{
		ListenAddress:   c.GetString("server.listen_address"),
		APIKey:          c.GetString("server.api_key"),
		PublicURL:       c.GetString("server.public_url"),
		CORSOrigins:     c.GetStringSlice("server.cors_origins"),
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

// GetOAuth returns the OAuth configuration
func (c *Config) GetOAuth() (OAuthConfig, error) {
	stateTTL, err := c.GetDuration("oauth.state_ttl")
	if err != nil {
		return OAuthConfig{}, fmt.Errorf("invalid oauth state ttl: %w", err)
	}
	httpTimeout, err := c.GetDuration("oauth.http_timeout")
	if err != nil {
		return OAuthConfig{}, fmt.Errorf("invalid oauth http timeout: %w", err)
	}
	return OAuthConfig{
		ClientID:     c.GetString("oauth.client_id"),
		ClientSecret: c.GetString("oauth.client_secret"),
		RedirectURL:  c.GetString("oauth.redirect_url"),
		Scopes:       c.GetStringSlice("oauth.scopes"),
		StateSecret:  c.GetString("oauth.state_secret"),
		StateTTL:     stateTTL,
		CookieSecure: c.GetBool("oauth.cookie_secure"),
		HTTPTimeout:  httpTimeout,
	}, nil
}

// GetPolicy returns the quarantine policy configuration
func (c *Config) GetPolicy() (PolicyConfig, error) {
	p := PolicyConfig{
		Threshold:        c.GetFloat64("policy.threshold"),
		QuarantineLabel:  c.GetString("policy.quarantine_label"),
		DefaultBatchSize: c.GetInt("policy.default_batch_size"),
		MaxBatchSize:     c.GetInt("policy.max_batch_size"),
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return PolicyConfig{}, fmt.Errorf("policy threshold %v outside [0,1]", p.Threshold)
	}
	if p.QuarantineLabel == "" {
		return PolicyConfig{}, fmt.Errorf("policy quarantine label must not be empty")
	}
	if p.DefaultBatchSize <= 0 || p.MaxBatchSize <= 0 {
		return PolicyConfig{}, fmt.Errorf("policy batch sizes must be positive")
	}
	if p.DefaultBatchSize > p.MaxBatchSize {
		p.DefaultBatchSize = p.MaxBatchSize
	}
	return p, nil
}

// GetStore returns the key-value store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:          c.GetString("store.type"),
		DataDir:       c.GetString("store.data_dir"),
		SQLitePath:    c.GetString("store.sqlite_path"),
		MySQLDSN:      c.GetString("store.mysql_dsn"),
		RedisAddr:     c.GetString("store.redis_addr"),
		RedisPassword: c.GetString("store.redis_password"),
		RedisDB:       c.GetInt("store.redis_db"),
		RedisPrefix:   c.GetString("store.redis_prefix"),
	}
}

// GetDigest returns the digest delivery configuration
func (c *Config) GetDigest() DigestConfig {
	return DigestConfig{
		SMTPAddress: c.GetString("digest.smtp_address"),
		HELO:        c.GetString("digest.helo"),
		Username:    c.GetString("digest.username"),
		Password:    c.GetString("digest.password"),
		From:        c.GetString("digest.from"),
		Subject:     c.GetString("digest.subject"),
		Limit:       c.GetInt("digest.limit"),
	}
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:      c.GetString("logging.level"),
		Format:     c.GetString("logging.format"),
		File:       c.GetString("logging.file"),
		MaxSizeMB:  c.GetInt("logging.max_size_mb"),
		MaxBackups: c.GetInt("logging.max_backups"),
		MaxAgeDays: c.GetInt("logging.max_age_days"),
	}
}
