package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"finstat/internal/extractor"
)

type Config struct {
	DBPath    string
	DataDir   string
	OutputDir string
	InboxDir  string

	SchemaPath            string
	DefaultDollarCurrency string
	LabelFuzzyThreshold   float64
	KeepAlternates        bool
	BalanceTolerance      float64
	FinancialDocThreshold float64
	Workers               int

	HTTPAddr    string
	CORSOrigins []string

	LogLevel  string
	LogFormat string

	PublishURL       string
	PublishToken     string
	PublishRPS       int
	PublishTimeoutMs int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	InboxListenerProvider     string
	InboxListenerLabel        string
	InboxListenerInterval     time.Duration
	InboxListenerFetchMax     int
	InboxListenerProcessBatch int
	InboxListenerAutoExport   bool
	InboxListenerAutoPublish  bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, eris.Wrap(err, "config: working directory")
	}

	dataDir := getEnv("DATA_DIR", filepath.Join(cwd, "data"))
	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(dataDir, "finstat.db")),
		DataDir:   dataDir,
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		InboxDir:  getEnv("INBOX_DIR", filepath.Join(dataDir, "inbox")),

		SchemaPath:            getEnv("SCHEMA_PATH", ""),
		DefaultDollarCurrency: strings.ToUpper(getEnv("DEFAULT_DOLLAR_CURRENCY", "USD")),
		LabelFuzzyThreshold:   getEnvFloat("LABEL_FUZZY_THRESHOLD", 0),
		KeepAlternates:        getEnvBool("KEEP_ALTERNATES", true),
		BalanceTolerance:      getEnvFloat("BALANCE_TOLERANCE", 0.05),
		FinancialDocThreshold: getEnvFloat("FINANCIAL_DOC_THRESHOLD", 0.3),
		Workers:               getEnvInt("WORKERS", 4),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		PublishURL:       getEnv("PUBLISH_URL", ""),
		PublishToken:     getEnv("PUBLISH_TOKEN", ""),
		PublishRPS:       getEnvInt("PUBLISH_RPS", 5),
		PublishTimeoutMs: getEnvInt("PUBLISH_TIMEOUT_MS", 30000),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		InboxListenerProvider:     getEnv("INBOX_LISTENER_PROVIDER", ""),
		InboxListenerLabel:        getEnv("INBOX_LISTENER_LABEL", "INBOX"),
		InboxListenerInterval:     getEnvDuration("INBOX_LISTENER_INTERVAL_SEC", 30*time.Second),
		InboxListenerFetchMax:     getEnvInt("INBOX_LISTENER_FETCH_MAX", 20),
		InboxListenerProcessBatch: getEnvInt("INBOX_LISTENER_PROCESS_BATCH", 20),
		InboxListenerAutoExport:   getEnvBool("INBOX_LISTENER_AUTO_EXPORT", true),
		InboxListenerAutoPublish:  getEnvBool("INBOX_LISTENER_AUTO_PUBLISH", false),
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return eris.Errorf("missing required env var: %s", name)
	}
	return nil
}

// ExtractorOptions maps the extraction settings onto engine options.
func (c Config) ExtractorOptions() extractor.Options {
	return extractor.Options{
		DefaultDollar:    c.DefaultDollarCurrency,
		FuzzyThreshold:   c.LabelFuzzyThreshold,
		KeepAlternates:   c.KeepAlternates,
		BalanceTolerance: c.BalanceTolerance,
	}
}

// InitLogger initializes the global zap logger. Format "console" selects the
// development encoder.
func InitLogger(level, format string) error {
	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(lvl)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

// getEnvDuration reads whole seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	secs := getEnvInt(key, -1)
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
