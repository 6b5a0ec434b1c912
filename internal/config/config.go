package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the immutable process configuration.
type Config struct {
	Local             LocalMQTT     `yaml:"local_mqtt"`
	Ubidots           Ubidots       `yaml:"ubidots"`
	Database          Database      `yaml:"database"`
	Gemini            Gemini        `yaml:"gemini"`
	SendInterval      time.Duration `yaml:"send_interval"`
	EthyleneThreshold float64       `yaml:"ethylene_threshold"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
	QoS               int           `yaml:"qos"`
	HTTP              HTTP          `yaml:"http"`
	Log               Log           `yaml:"log"`
	Advisory          Advisory      `yaml:"advisory"`
}

// LocalMQTT describes the local sensor broker.
type LocalMQTT struct {
	Broker            string `yaml:"broker"`
	ClientID          string `yaml:"client_id"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	DataTopic         string `yaml:"data_topic"`
	AlarmTopic        string `yaml:"alarm_topic"`
	NotificationTopic string `yaml:"notification_topic"`
	ControlTopic      string `yaml:"control_alarma_topic"`
}

// Ubidots describes the cloud broker account.
type Ubidots struct {
	Broker        string `yaml:"broker"`
	Token         string `yaml:"token"`
	Device        string `yaml:"device"`
	ForecastField string `yaml:"forecast_field"`
	AlarmTopic    string `yaml:"alarm_topic"`
}

// Database selects the reading store.
type Database struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Gemini configures the forecast oracle.
type Gemini struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTP configures the status API. An empty Addr disables it.
type HTTP struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Advisory configures out-of-band advisory channels.
type Advisory struct {
	WebhookURL     string        `yaml:"webhook_url"`
	TelegramToken  string        `yaml:"telegram_bot_token"`
	TelegramChatID int64         `yaml:"telegram_chat_id"`
	Template       string        `yaml:"template"`
	Cooldown       time.Duration `yaml:"cooldown"`
	DedupeWindow   time.Duration `yaml:"dedupe_window"`
	Timeout        time.Duration `yaml:"timeout"`
	DashboardURL   string        `yaml:"dashboard_url"`
}

// LoadOptions points at optional configuration sources.
type LoadOptions struct {
	ConfigPath string
	EnvFile    string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Local: LocalMQTT{
			Broker:            "tcp://192.168.89.140:1883",
			DataTopic:         "sensors/data",
			AlarmTopic:        "sensors/alarm",
			NotificationTopic: "sensors/notification",
			ControlTopic:      "sensors/control_alarma",
		},
		Ubidots: Ubidots{
			Broker:        "tcp://industrial.api.ubidots.com:1883",
			Device:        "fruit_monitor",
			ForecastField: "gemini_message2",
		},
		Database: Database{
			Driver: "sqlite",
			Path:   "sensor_data.db",
		},
		Gemini: Gemini{
			Model:   "gemini-1.5-flash",
			Timeout: 30 * time.Second,
		},
		SendInterval:      30 * time.Second,
		EthyleneThreshold: 0.75,
		PublishTimeout:    10 * time.Second,
		QoS:               1,
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Advisory: Advisory{
			Timeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(opts LoadOptions) (Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: env file: %w", err)
		}
	}

	cfg := Default()

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv("BRIDGE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if cfg.Ubidots.AlarmTopic == "" {
		cfg.Ubidots.AlarmTopic = "/v1.6/devices/" + cfg.Ubidots.Device + "/alarm"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Local.Broker = getenvDefault("LOCAL_MQTT_BROKER", cfg.Local.Broker)
	cfg.Local.ClientID = getenvDefault("LOCAL_MQTT_CLIENT_ID", cfg.Local.ClientID)
	cfg.Local.Username = getenvDefault("LOCAL_MQTT_USERNAME", cfg.Local.Username)
	cfg.Local.Password = getenvDefault("LOCAL_MQTT_PASSWORD", cfg.Local.Password)
	cfg.Local.DataTopic = getenvDefault("DATA_TOPIC", cfg.Local.DataTopic)
	cfg.Local.AlarmTopic = getenvDefault("ALARM_TOPIC", cfg.Local.AlarmTopic)
	cfg.Local.NotificationTopic = getenvDefault("NOTIFICATION_TOPIC", cfg.Local.NotificationTopic)
	cfg.Local.ControlTopic = getenvDefault("CONTROL_ALARMA_TOPIC", cfg.Local.ControlTopic)

	cfg.Ubidots.Broker = getenvDefault("UBIDOTS_BROKER", cfg.Ubidots.Broker)
	cfg.Ubidots.Token = getenvDefault("UBIDOTS_TOKEN", cfg.Ubidots.Token)
	cfg.Ubidots.Device = getenvDefault("UBIDOTS_DEVICE", cfg.Ubidots.Device)
	cfg.Ubidots.ForecastField = getenvDefault("UBIDOTS_FORECAST_FIELD", cfg.Ubidots.ForecastField)
	cfg.Ubidots.AlarmTopic = getenvDefault("UBIDOTS_ALARM_TOPIC", cfg.Ubidots.AlarmTopic)

	cfg.Database.Driver = getenvDefault("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Path = getenvDefault("DB_PATH", getenvDefault("DATABASE_URL", cfg.Database.Path))

	cfg.Gemini.APIKey = getenvDefault("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.Model = getenvDefault("GEMINI_MODEL", cfg.Gemini.Model)
	cfg.Gemini.Timeout = getenvDuration("GEMINI_TIMEOUT", cfg.Gemini.Timeout)

	cfg.SendInterval = getenvDuration("SEND_INTERVAL", cfg.SendInterval)
	cfg.EthyleneThreshold = getenvFloatDefault("ETHYLENE_THRESHOLD", cfg.EthyleneThreshold)
	cfg.PublishTimeout = getenvDuration("PUBLISH_TIMEOUT", cfg.PublishTimeout)
	cfg.QoS = getenvIntDefault("MQTT_QOS", cfg.QoS)

	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.HTTP.JWTSecret))

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getenvDefault("LOG_FILE", cfg.Log.File)

	cfg.Advisory.WebhookURL = getenvDefault("ADVISORY_WEBHOOK_URL", cfg.Advisory.WebhookURL)
	cfg.Advisory.TelegramToken = getenvDefault("TELEGRAM_BOT_TOKEN", cfg.Advisory.TelegramToken)
	cfg.Advisory.TelegramChatID = getenvInt64Default("TELEGRAM_CHAT_ID", cfg.Advisory.TelegramChatID)
	cfg.Advisory.Template = getenvDefault("ADVISORY_TEMPLATE", cfg.Advisory.Template)
	cfg.Advisory.Cooldown = getenvDuration("ADVISORY_COOLDOWN", cfg.Advisory.Cooldown)
	cfg.Advisory.DedupeWindow = getenvDuration("ADVISORY_DEDUP_WINDOW", cfg.Advisory.DedupeWindow)
	cfg.Advisory.Timeout = getenvDuration("ADVISORY_TIMEOUT", cfg.Advisory.Timeout)
	cfg.Advisory.DashboardURL = getenvDefault("DASHBOARD_URL", cfg.Advisory.DashboardURL)
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Ubidots.Token) == "" {
		errs = append(errs, errors.New("config: UBIDOTS_TOKEN required"))
	}
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		errs = append(errs, errors.New("config: GEMINI_API_KEY required"))
	}
	if strings.TrimSpace(c.Ubidots.Device) == "" {
		errs = append(errs, errors.New("config: ubidots device required"))
	}
	if c.SendInterval <= 0 {
		errs = append(errs, errors.New("config: send interval must be positive"))
	}
	if c.PublishTimeout <= 0 {
		errs = append(errs, errors.New("config: publish timeout must be positive"))
	}
	if c.QoS < 0 || c.QoS > 2 {
		errs = append(errs, fmt.Errorf("config: qos %d out of range", c.QoS))
	}
	if err := validateBroker("local broker", c.Local.Broker); err != nil {
		errs = append(errs, err)
	}
	if err := validateBroker("ubidots broker", c.Ubidots.Broker); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("config: database path required"))
	}
	if c.Advisory.TelegramToken != "" && c.Advisory.TelegramChatID == 0 {
		errs = append(errs, errors.New("config: TELEGRAM_CHAT_ID required with a bot token"))
	}
	for name, topic := range map[string]string{
		"data topic":         c.Local.DataTopic,
		"alarm topic":        c.Local.AlarmTopic,
		"notification topic": c.Local.NotificationTopic,
		"control topic":      c.Local.ControlTopic,
	} {
		if strings.TrimSpace(topic) == "" {
			errs = append(errs, fmt.Errorf("config: %s required", name))
		}
	}
	return errors.Join(errs...)
}

func validateBroker(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: %s %q must look like tcp://host:port", name, raw)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("config: %s %q has unsupported scheme", name, raw)
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64Default(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration accepts Go durations or a bare number of seconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
