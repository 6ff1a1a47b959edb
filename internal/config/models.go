package config

import (
	"fmt"
	"net/url"
	"time"
)

type ServerConfig struct {
	ListenAddress string
	PublicURL     string
	MaxBodyBytes  int64
}

type APIConfig struct {
	Token       string
	TokenSecret string
}

type DatabaseConfig struct {
	Driver      string
	URL         string
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	AutoMigrate bool
	SeedFile    string
}

// DSN returns database.url when set, otherwise builds one from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%s", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type QueueConfig struct {
	Driver       string
	AMQPURL      string
	Name         string
	MaxRetries   int
	RetryBackoff time.Duration
}

type OutboxConfig struct {
	RelayInterval time.Duration
	Grace         time.Duration
	BatchSize     int
}

type MailConfig struct {
	Provider string
}

type PostalConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type SESConfig struct {
	Region           string
	ConfigurationSet string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string
	Helo     string
	Timeout  time.Duration
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type WorkerConfig struct {
	MetricsAddress string
}

func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		PublicURL:     c.GetString("server.public_url"),
		MaxBodyBytes:  c.GetInt64("server.max_body_bytes"),
	}
}

func (c *Config) GetAPI() APIConfig {
	return APIConfig{
		Token:       c.GetString("api.token"),
		TokenSecret: c.GetString("subscription.token_secret"),
	}
}

func (c *Config) GetDatabase() DatabaseConfig {
	return DatabaseConfig{
		Driver:      c.GetString("database.driver"),
		URL:         c.GetString("database.url"),
		Host:        c.GetString("database.host"),
		Port:        c.GetString("database.port"),
		User:        c.GetString("database.user"),
		Password:    c.GetString("database.password"),
		Name:        c.GetString("database.name"),
		SSLMode:     c.GetString("database.sslmode"),
		AutoMigrate: c.GetBool("database.auto_migrate"),
		SeedFile:    c.GetString("database.seed_file"),
	}
}

func (c *Config) GetQueue() QueueConfig {
	return QueueConfig{
		Driver:       c.GetString("queue.driver"),
		AMQPURL:      c.GetString("queue.amqp_url"),
		Name:         c.GetString("queue.name"),
		MaxRetries:   c.GetInt("queue.max_retries"),
		RetryBackoff: c.GetDuration("queue.retry_backoff"),
	}
}

func (c *Config) GetOutbox() OutboxConfig {
	return OutboxConfig{
		RelayInterval: c.GetDuration("outbox.relay_interval"),
		Grace:         c.GetDuration("outbox.grace"),
		BatchSize:     c.GetInt("outbox.batch_size"),
	}
}

func (c *Config) GetMail() MailConfig {
	return MailConfig{Provider: c.GetString("mail.provider")}
}

func (c *Config) GetPostal() PostalConfig {
	return PostalConfig{
		BaseURL: c.GetString("postal.base_url"),
		APIKey:  c.GetString("postal.api_key"),
		Timeout: c.GetDuration("postal.timeout"),
	}
}

func (c *Config) GetSES() SESConfig {
	return SESConfig{
		Region:           c.GetString("ses.region"),
		ConfigurationSet: c.GetString("ses.configuration_set"),
	}
}

func (c *Config) GetSMTP() SMTPConfig {
	return SMTPConfig{
		Host:     c.GetString("smtp.host"),
		Port:     c.GetInt("smtp.port"),
		Username: c.GetString("smtp.username"),
		Password: c.GetString("smtp.password"),
		TLS:      c.GetString("smtp.tls"),
		Helo:     c.GetString("smtp.helo"),
		Timeout:  c.GetDuration("smtp.timeout"),
	}
}

func (c *Config) GetArchive() ArchiveConfig {
	return ArchiveConfig{
		Enabled:   c.GetBool("archive.enabled"),
		Endpoint:  c.GetString("archive.endpoint"),
		AccessKey: c.GetString("archive.access_key"),
		SecretKey: c.GetString("archive.secret_key"),
		Bucket:    c.GetString("archive.bucket"),
		UseSSL:    c.GetBool("archive.use_ssl"),
	}
}

func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}

func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled: c.GetBool("metrics.enabled"),
		Path:    c.GetString("metrics.path"),
	}
}

func (c *Config) GetWorker() WorkerConfig {
	return WorkerConfig{MetricsAddress: c.GetString("worker.metrics_address")}
}
