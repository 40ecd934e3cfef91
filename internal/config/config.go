package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/benefits-notice/internal/notify"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Mail      MailConfig      `yaml:"mail" mapstructure:"mail"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Microsoft MicrosoftConfig `yaml:"microsoft" mapstructure:"microsoft"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	AdminToken  string   `yaml:"admin_token" mapstructure:"admin_token"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ImportConfig configures spreadsheet imports.
type ImportConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// MailConfig configures notice and reminder sends.
type MailConfig struct {
	AdminSenderEmail string     `yaml:"admin_sender_email" mapstructure:"admin_sender_email"`
	AppBaseURL       string     `yaml:"app_base_url" mapstructure:"app_base_url"`
	RatePerSecond    float64    `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Concurrency      int        `yaml:"concurrency" mapstructure:"concurrency"`
	Attempts         int        `yaml:"attempts" mapstructure:"attempts"`
	TemplatesPath    string     `yaml:"templates_path" mapstructure:"templates_path"`
	SMTP             SMTPConfig `yaml:"smtp" mapstructure:"smtp"`
}

// SMTPConfig holds the optional relay used when no mailbox is connected.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// GoogleConfig holds the Google OAuth client used to connect Gmail accounts.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
}

// MicrosoftConfig holds the Azure AD app used to connect Outlook accounts.
type MicrosoftConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	Tenant       string `yaml:"tenant" mapstructure:"tenant"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Settings returns the explicit sender settings handed to the mailer.
func (m MailConfig) Settings() notify.Settings {
	return notify.Settings{
		AdminSenderEmail: strings.TrimSpace(m.AdminSenderEmail),
		AppBaseURL:       strings.TrimRight(strings.TrimSpace(m.AppBaseURL), "/"),
	}
}

// SMTPRelay converts the relay settings for the notify package.
func (m MailConfig) SMTPRelay() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     m.SMTP.Host,
		Port:     m.SMTP.Port,
		Username: m.SMTP.Username,
		Password: m.SMTP.Password,
	}
}

// Mailer returns the pacing settings for bulk sends.
func (m MailConfig) Mailer() notify.MailerConfig {
	return notify.MailerConfig{
		RatePerSecond: m.RatePerSecond,
		Concurrency:   m.Concurrency,
		Attempts:      m.Attempts,
	}
}

// Configured reports whether a Google OAuth client is set.
func (g GoogleConfig) Configured() bool { return g.ClientID != "" && g.ClientSecret != "" }

// Configured reports whether a Microsoft OAuth client is set.
func (m MicrosoftConfig) Configured() bool { return m.ClientID != "" && m.ClientSecret != "" }

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BENEFITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("mail.rate_per_second", 5.0)
	v.SetDefault("mail.concurrency", 4)
	v.SetDefault("mail.attempts", 3)
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("microsoft.tenant", "common")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys without a default are only seen by Unmarshal when bound.
	for _, key := range []string{
		"store.database_url",
		"server.admin_token",
		"mail.admin_sender_email", "mail.app_base_url", "mail.templates_path",
		"mail.smtp.host", "mail.smtp.username", "mail.smtp.password",
		"google.client_id", "google.client_secret",
		"microsoft.client_id", "microsoft.client_secret",
	} {
		_ = v.BindEnv(key)
	}

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

// Validate checks the settings a command needs. Mode is one of "store",
// "import", "send" or "serve"; each mode includes the checks of the modes
// it depends on.
func (c *Config) Validate(mode string) error {
	var errs []string
	checkStore := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}
	checkImport := func() {
		if c.Import.BatchSize < 1 {
			errs = append(errs, "import.batch_size must be >= 1")
		}
	}
	checkSend := func() {
		if !absoluteURL(c.Mail.AppBaseURL) {
			errs = append(errs, "mail.app_base_url must be an absolute URL")
		}
		if c.Mail.Concurrency < 1 {
			errs = append(errs, "mail.concurrency must be >= 1")
		}
		if c.Mail.RatePerSecond < 0 {
			errs = append(errs, "mail.rate_per_second must be >= 0")
		}
	}

	switch mode {
	case "store":
		checkStore()
	case "import":
		checkStore()
		checkImport()
	case "send":
		checkStore()
		checkSend()
	case "serve":
		checkStore()
		checkImport()
		checkSend()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.AdminToken == "" {
			errs = append(errs, "server.admin_token is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func absoluteURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	return err == nil && u.IsAbs() && u.Host != ""
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
