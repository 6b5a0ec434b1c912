package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("UBIDOTS_TOKEN", "BBUS-test")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("BRIDGE_CONFIG", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Local.Broker != "tcp://192.168.89.140:1883" {
		t.Fatalf("unexpected local broker %q", cfg.Local.Broker)
	}
	if cfg.SendInterval != 30*time.Second || cfg.EthyleneThreshold != 0.75 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Ubidots.AlarmTopic != "/v1.6/devices/fruit_monitor/alarm" {
		t.Fatalf("unexpected alarm topic %q", cfg.Ubidots.AlarmTopic)
	}
	if cfg.QoS != 1 || cfg.HTTP.Addr != "" {
		t.Fatalf("unexpected qos/http: %d %q", cfg.QoS, cfg.HTTP.Addr)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("UBIDOTS_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("BRIDGE_CONFIG", "")
	_, err := Load(LoadOptions{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"UBIDOTS_TOKEN", "GEMINI_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	yamlBody := `
local_mqtt:
  broker: tcp://10.0.0.5:1883
  data_topic: chamber/data
ubidots:
  device: banana_room
send_interval: 45s
ethylene_threshold: 0.5
advisory:
  cooldown: 15m
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("ETHYLENE_THRESHOLD", "0.9")

	cfg, err := Load(LoadOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Local.Broker != "tcp://10.0.0.5:1883" || cfg.Local.DataTopic != "chamber/data" {
		t.Fatalf("yaml not applied: %+v", cfg.Local)
	}
	if cfg.Local.AlarmTopic != "sensors/alarm" {
		t.Fatalf("expected default alarm topic kept, got %q", cfg.Local.AlarmTopic)
	}
	if cfg.SendInterval != 45*time.Second || cfg.Advisory.Cooldown != 15*time.Minute {
		t.Fatalf("durations not parsed: %v %v", cfg.SendInterval, cfg.Advisory.Cooldown)
	}
	if cfg.EthyleneThreshold != 0.9 {
		t.Fatalf("expected env to override yaml, got %v", cfg.EthyleneThreshold)
	}
	if cfg.Ubidots.AlarmTopic != "/v1.6/devices/banana_room/alarm" {
		t.Fatalf("unexpected derived alarm topic %q", cfg.Ubidots.AlarmTopic)
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv("BRIDGE_CONFIG", "")
	t.Setenv("UBIDOTS_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("UBIDOTS_TOKEN")
	os.Unsetenv("GEMINI_API_KEY")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("UBIDOTS_TOKEN=from-file\nGEMINI_API_KEY=gk\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	cfg, err := Load(LoadOptions{EnvFile: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ubidots.Token != "from-file" {
		t.Fatalf("expected token from env file, got %q", cfg.Ubidots.Token)
	}
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	setRequired(t)
	if _, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "absent.env")}); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestSendIntervalAcceptsSeconds(t *testing.T) {
	setRequired(t)
	t.Setenv("SEND_INTERVAL", "12")
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SendInterval != 12*time.Second {
		t.Fatalf("expected 12s, got %v", cfg.SendInterval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Ubidots.Token = "t"
	cfg.Gemini.APIKey = "k"
	cfg.SendInterval = 0
	cfg.Local.Broker = "192.168.89.140"
	cfg.QoS = 3
	cfg.Advisory.TelegramToken = "bot"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"send interval", "local broker", "qos", "TELEGRAM_CHAT_ID"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q, got %v", want, err)
		}
	}
}
