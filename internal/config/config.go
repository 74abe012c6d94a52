package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfigMissing is returned when the settings file is absent. Startup
// configuration errors are the only fatal error class: the operator must
// fix the file and retry.
var ErrConfigMissing = errors.New("settings file missing")

// Model points the bundled detector at its network files.
type Model struct {
	Weights    string  `mapstructure:"weights"`
	NetConfig  string  `mapstructure:"net_config"`
	ClassNames string  `mapstructure:"class_names"`
	InputSize  int     `mapstructure:"input_size"`
	Confidence float64 `mapstructure:"confidence"`
	IOU        float64 `mapstructure:"iou"`
}

// Engine configures the detection engine process.
type Engine struct {
	VideoSource        string   `mapstructure:"video_source"`
	ZoneFile           string   `mapstructure:"zone_file"`
	OutputDir          string   `mapstructure:"output_dir"`
	ListenAddr         string   `mapstructure:"listen_addr"`
	DashboardURL       string   `mapstructure:"dashboard_url"`
	ViolationClasses   []string `mapstructure:"violation_classes"`
	ViolationThreshold float64  `mapstructure:"violation_threshold_seconds"`
	GracePeriod        float64  `mapstructure:"grace_period_seconds"`
	Model              Model    `mapstructure:"model"`
}

// ViolationThresholdDuration returns the lingering threshold as a Duration.
func (e Engine) ViolationThresholdDuration() time.Duration {
	return time.Duration(e.ViolationThreshold * float64(time.Second))
}

// GracePeriodDuration returns the track grace period as a Duration.
func (e Engine) GracePeriodDuration() time.Duration {
	return time.Duration(e.GracePeriod * float64(time.Second))
}

// Dashboard configures the dashboard/control server process.
type Dashboard struct {
	ListenAddr   string   `mapstructure:"listen_addr"`
	DatabaseDSN  string   `mapstructure:"database_dsn"`
	AuthSecret   string   `mapstructure:"auth_secret"`
	EvidenceDir  string   `mapstructure:"evidence_dir"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	EngineBinary string   `mapstructure:"engine_binary"`
}

// MQTT configures the optional secondary event emitter. Disabled when
// BrokerURL is empty.
type MQTT struct {
	BrokerURL string `mapstructure:"broker_url"`
	Topic     string `mapstructure:"topic"`
	ClientID  string `mapstructure:"client_id"`
}

type Config struct {
	LogLevel  string    `mapstructure:"log_level"`
	Engine    Engine    `mapstructure:"engine"`
	Dashboard Dashboard `mapstructure:"dashboard"`
	MQTT      MQTT      `mapstructure:"mqtt"`
}

// Load reads settings from the given file, with PARKWATCH_ environment
// overrides (e.g. PARKWATCH_ENGINE_VIDEO_SOURCE).
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PARKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}

	if cfg.Engine.VideoSource == "" {
		return nil, fmt.Errorf("settings %s: engine.video_source is required", path)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("engine.zone_file", "config/zones.json")
	v.SetDefault("engine.output_dir", "output")
	v.SetDefault("engine.listen_addr", ":8081")
	v.SetDefault("engine.dashboard_url", "http://localhost:8080/api/v1/violations")
	v.SetDefault("engine.violation_classes", []string{"motorcycle"})
	v.SetDefault("engine.violation_threshold_seconds", 10.0)
	v.SetDefault("engine.grace_period_seconds", 3.0)
	v.SetDefault("engine.model.input_size", 640)
	v.SetDefault("engine.model.confidence", 0.3)
	v.SetDefault("engine.model.iou", 0.5)

	v.SetDefault("dashboard.listen_addr", ":8080")
	v.SetDefault("dashboard.evidence_dir", "output")
	v.SetDefault("dashboard.engine_binary", "./engine")

	v.SetDefault("mqtt.topic", "parkwatch/violations")
	v.SetDefault("mqtt.client_id", "parkwatch-engine")
}
