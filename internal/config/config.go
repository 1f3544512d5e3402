package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Credentials CredentialsConfig
	Storage     StorageConfig
	OCR         OCRConfig
	LLM         LLMConfig
	Session     SessionConfig
	LogLevel    slog.Level
}

// CredentialsConfig holds the three API credentials. When ParamPrefix is
// set, empty credentials are resolved from SSM under that prefix.
type CredentialsConfig struct {
	ParamPrefix   string
	TelegramToken string
	MindeeAPIKey  string
	LLMAPIKey     string
	WebhookSecret string
}

type StorageConfig struct {
	DownloadsDir string
	ArchiveDir   string
}

// OCRConfig holds the Mindee client settings.
type OCRConfig struct {
	BaseURL            string
	Account            string
	MinRequestInterval time.Duration
	MaxPollAttempts    int
	RequestAttempts    int
	RetryDelay         time.Duration
	BackoffCap         time.Duration
	Timeout            time.Duration
}

// LLMConfig holds the text-generation client settings.
type LLMConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type SessionConfig struct {
	Table       string
	TTL         time.Duration
	PollWorkers int
}

// Parameter names under Credentials.ParamPrefix.
const (
	TelegramTokenParam = "/telegram-token"
	MindeeTokenParam   = "/mindee-token"
	LLMTokenParam      = "/groq-token"
)

// minDuration is the smallest accepted delay or timeout. Anything shorter is
// almost certainly a unit mistake.
const minDuration = time.Millisecond

// lambdaEnv is set by the Lambda runtime in every function container.
const lambdaEnv = "AWS_LAMBDA_FUNCTION_NAME"

func setDefaults(v *viper.Viper) {
	v.SetDefault("param_prefix", "")
	v.SetDefault("telegram_token", "")
	v.SetDefault("mindee_api_key", "")
	v.SetDefault("groq_api_key", "")
	v.SetDefault("webhook_secret", "")

	// The Lambda task root is read-only; only the temp dir is writable.
	dataRoot := ""
	if os.Getenv(lambdaEnv) != "" {
		dataRoot = os.TempDir()
	}
	v.SetDefault("downloads_dir", filepath.Join(dataRoot, "downloads"))
	v.SetDefault("mindee_data_dir", filepath.Join(dataRoot, "mindee_data"))

	v.SetDefault("mindee_base_url", "https://api.mindee.net/v1")
	v.SetDefault("mindee_account", "Rajiole")
	v.SetDefault("mindee_min_request_interval", "3s")
	v.SetDefault("mindee_max_attempts", 10)
	v.SetDefault("mindee_request_attempts", 5)
	v.SetDefault("mindee_retry_delay", "3s")
	v.SetDefault("mindee_backoff_cap", "60s")
	v.SetDefault("mindee_timeout", "30s")

	v.SetDefault("llm_api_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm_model", "mixtral-8x7b-32768")
	v.SetDefault("llm_temperature", 0.7)
	v.SetDefault("llm_timeout", "30s")

	v.SetDefault("session_table", "")
	v.SetDefault("session_ttl", "24h")
	v.SetDefault("poll_workers", 8)
	v.SetDefault("log_level", "info")
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. An empty path looks for
// ./config.yaml and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("config: log_level: %w", err)
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"mindee_min_request_interval", "mindee_retry_delay", "mindee_backoff_cap",
		"mindee_timeout", "llm_timeout", "session_ttl",
	} {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", key, err)
		}
		durations[key] = d
	}

	return &Config{
		Credentials: CredentialsConfig{
			ParamPrefix:   strings.TrimRight(strings.TrimSpace(v.GetString("param_prefix")), "/"),
			TelegramToken: v.GetString("telegram_token"),
			MindeeAPIKey:  v.GetString("mindee_api_key"),
			LLMAPIKey:     v.GetString("groq_api_key"),
			WebhookSecret: v.GetString("webhook_secret"),
		},
		Storage: StorageConfig{
			DownloadsDir: v.GetString("downloads_dir"),
			ArchiveDir:   v.GetString("mindee_data_dir"),
		},
		OCR: OCRConfig{
			BaseURL:            v.GetString("mindee_base_url"),
			Account:            v.GetString("mindee_account"),
			MinRequestInterval: durations["mindee_min_request_interval"],
			MaxPollAttempts:    v.GetInt("mindee_max_attempts"),
			RequestAttempts:    v.GetInt("mindee_request_attempts"),
			RetryDelay:         durations["mindee_retry_delay"],
			BackoffCap:         durations["mindee_backoff_cap"],
			Timeout:            durations["mindee_timeout"],
		},
		LLM: LLMConfig{
			BaseURL:     v.GetString("llm_api_url"),
			Model:       v.GetString("llm_model"),
			Temperature: v.GetFloat64("llm_temperature"),
			Timeout:     durations["llm_timeout"],
		},
		Session: SessionConfig{
			Table:       v.GetString("session_table"),
			TTL:         durations["session_ttl"],
			PollWorkers: v.GetInt("poll_workers"),
		},
		LogLevel: level,
	}, nil
}

// parseDuration accepts Go duration strings ("500ms", "3s") and bare
// numbers, which are read as seconds.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

// Validate rejects configurations the bot cannot start with.
func (c *Config) Validate() error {
	if c.Credentials.ParamPrefix == "" {
		if c.Credentials.TelegramToken == "" {
			return errors.New("config: TELEGRAM_TOKEN is required when PARAM_PREFIX is not set")
		}
		if c.Credentials.MindeeAPIKey == "" {
			return errors.New("config: MINDEE_API_KEY is required when PARAM_PREFIX is not set")
		}
		if c.Credentials.LLMAPIKey == "" {
			return errors.New("config: GROQ_API_KEY is required when PARAM_PREFIX is not set")
		}
	}
	if strings.TrimSpace(c.Storage.DownloadsDir) == "" || strings.TrimSpace(c.Storage.ArchiveDir) == "" {
		return errors.New("config: DOWNLOADS_DIR and MINDEE_DATA_DIR must not be empty")
	}
	if c.OCR.MinRequestInterval < 0 {
		return errors.New("config: MINDEE_MIN_REQUEST_INTERVAL must not be negative")
	}
	if c.OCR.MaxPollAttempts <= 0 || c.OCR.RequestAttempts <= 0 {
		return errors.New("config: MINDEE_MAX_ATTEMPTS and MINDEE_REQUEST_ATTEMPTS must be positive")
	}
	if c.OCR.RetryDelay < minDuration || c.OCR.BackoffCap < minDuration || c.OCR.Timeout < minDuration {
		return fmt.Errorf("config: MINDEE_RETRY_DELAY, MINDEE_BACKOFF_CAP and MINDEE_TIMEOUT must be at least %s", minDuration)
	}
	if c.LLM.Model == "" {
		return errors.New("config: LLM_MODEL is required")
	}
	if c.LLM.Timeout < minDuration {
		return fmt.Errorf("config: LLM_TIMEOUT must be at least %s", minDuration)
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	return nil
}

// CredentialSource lists the credential parameter names and the values that
// were supplied directly, keyed by the same names. Callers resolve a value
// from SSM when it is missing here.
func (c *Config) CredentialSource() map[string]string {
	p := c.Credentials.ParamPrefix
	out := map[string]string{}
	if c.Credentials.TelegramToken != "" {
		out[p+TelegramTokenParam] = c.Credentials.TelegramToken
	}
	if c.Credentials.MindeeAPIKey != "" {
		out[p+MindeeTokenParam] = c.Credentials.MindeeAPIKey
	}
	if c.Credentials.LLMAPIKey != "" {
		out[p+LLMTokenParam] = c.Credentials.LLMAPIKey
	}
	return out
}

// ParamName returns the full parameter name for suffix under the prefix.
func (c *Config) ParamName(suffix string) string {
	return c.Credentials.ParamPrefix + suffix
}
