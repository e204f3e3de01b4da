package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid is returned by Load and Validate when a setting is out of range.
var ErrInvalid = errors.New("invalid configuration")

// LabelThreshold maps a model label to the hazard kind it signals and the
// confidence the label must strictly exceed.
type LabelThreshold struct {
	Label     string
	Kind      string
	Threshold float64
}

type Config struct {
	ModelPath       string
	ModelBackend    string // "eim" or "dnn"
	ModelConfigPath string
	ModelLabelsPath string
	ModelInputScale float64

	StreamSource   string
	ReadRetryDelay time.Duration

	ResizeWidth       int
	ResizeHeight      int
	FrameSkip         int // Classify every Nth observed frame
	DarknessThreshold float64
	MotionThreshold   int
	HazardLabels      []LabelThreshold // Priority order, first match wins

	GasThreshold        int
	ConfirmWindow       time.Duration
	ConfirmPollInterval time.Duration
	ConfirmGracePeriod  time.Duration
	SensorCommand       []string

	GPSEndpoint   string
	GPSRetries    int
	GPSRetryDelay time.Duration
	GPSTimeout    time.Duration
	MapLinkBase   string

	CycleDelay   time.Duration
	FrameWait    time.Duration
	AlertTimeout time.Duration // Bounds location lookup plus delivery once confirmed

	SaveFrames         bool
	FrameDirectory     string
	FrameBufferLimit   int
	FrameFlushInterval time.Duration

	PushbulletToken string
	PushbulletURL   string
	MQTTBroker      string
	MQTTTopic       string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string

	StatusPort  int
	StatusToken string

	LogLevel  string
	LogFormat string
	LogFile   string
}

var defaults = map[string]any{
	"model_path":        "./model/fire-detection.eim",
	"model_backend":     "eim",
	"model_config_path": "",
	"model_labels_path": "",
	"model_input_scale": 1.0,

	"stream_source":    "http://192.168.50.17:8080/video",
	"read_retry_delay": "100ms",

	"resize_width":       96,
	"resize_height":      96,
	"frame_skip":         5,
	"darkness_threshold": 3.0,
	"motion_threshold":   100,
	"hazard_labels":      "Normal_Fire:Normal:0.9,Wild_Fire:Wild:0.9",

	"gas_threshold":         60,
	"confirm_window":        "40s",
	"confirm_poll_interval": "1s",
	"confirm_grace_period":  "5s",
	"sensor_command":        "sudo python3 -u read_gas_value.py",

	"gps_endpoint":    "http://192.168.50.17:5050/get_gps",
	"gps_retries":     5,
	"gps_retry_delay": "2s",
	"gps_timeout":     "10s",
	"map_link_base":   "https://maps.google.com/?q=",

	"cycle_delay":   "1s",
	"frame_wait":    "100ms",
	"alert_timeout": "90s",

	"save_frames":          false,
	"frame_dir":            "./frames",
	"frame_buffer_limit":   10,
	"frame_flush_interval": "30s",

	"pushbullet_token": "",
	"pushbullet_url":   "https://api.pushbullet.com/v2/pushes",
	"mqtt_broker":      "",
	"mqtt_topic":       "firewatch/alerts",
	"mqtt_client_id":   "firewatch",
	"mqtt_username":    "",
	"mqtt_password":    "",

	"status_port":  0,
	"status_token": "",

	"log_level":  "info",
	"log_format": "console",
	"log_file":   "fire_detection.log",
}

// Load reads the optional .env file, the optional YAML config file and the
// process environment, in increasing order of precedence.
func Load() (*Config, error) {
	envFile := getEnv("FIREWATCH_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := os.Getenv("FIREWATCH_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	labels, err := ParseHazardLabels(v.GetString("hazard_labels"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ModelPath:       v.GetString("model_path"),
		ModelBackend:    strings.ToLower(v.GetString("model_backend")),
		ModelConfigPath: v.GetString("model_config_path"),
		ModelLabelsPath: v.GetString("model_labels_path"),
		ModelInputScale: v.GetFloat64("model_input_scale"),

		StreamSource:   v.GetString("stream_source"),
		ReadRetryDelay: v.GetDuration("read_retry_delay"),

		ResizeWidth:       v.GetInt("resize_width"),
		ResizeHeight:      v.GetInt("resize_height"),
		FrameSkip:         v.GetInt("frame_skip"),
		DarknessThreshold: v.GetFloat64("darkness_threshold"),
		MotionThreshold:   v.GetInt("motion_threshold"),
		HazardLabels:      labels,

		GasThreshold:        v.GetInt("gas_threshold"),
		ConfirmWindow:       v.GetDuration("confirm_window"),
		ConfirmPollInterval: v.GetDuration("confirm_poll_interval"),
		ConfirmGracePeriod:  v.GetDuration("confirm_grace_period"),
		SensorCommand:       strings.Fields(v.GetString("sensor_command")),

		GPSEndpoint:   v.GetString("gps_endpoint"),
		GPSRetries:    v.GetInt("gps_retries"),
		GPSRetryDelay: v.GetDuration("gps_retry_delay"),
		GPSTimeout:    v.GetDuration("gps_timeout"),
		MapLinkBase:   v.GetString("map_link_base"),

		CycleDelay:   v.GetDuration("cycle_delay"),
		FrameWait:    v.GetDuration("frame_wait"),
		AlertTimeout: v.GetDuration("alert_timeout"),

		SaveFrames:         v.GetBool("save_frames"),
		FrameDirectory:     v.GetString("frame_dir"),
		FrameBufferLimit:   v.GetInt("frame_buffer_limit"),
		FrameFlushInterval: v.GetDuration("frame_flush_interval"),

		PushbulletToken: v.GetString("pushbullet_token"),
		PushbulletURL:   v.GetString("pushbullet_url"),
		MQTTBroker:      v.GetString("mqtt_broker"),
		MQTTTopic:       v.GetString("mqtt_topic"),
		MQTTClientID:    v.GetString("mqtt_client_id"),
		MQTTUsername:    v.GetString("mqtt_username"),
		MQTTPassword:    v.GetString("mqtt_password"),

		StatusPort:  v.GetInt("status_port"),
		StatusToken: v.GetString("status_token"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogFile:   v.GetString("log_file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise surface as odd runtime behavior.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.ModelPath != "", "model_path is required")
	check(c.ModelBackend == "eim" || c.ModelBackend == "dnn", "model_backend must be eim or dnn, got %q", c.ModelBackend)
	check(c.StreamSource != "", "stream_source is required")
	check(c.ResizeWidth > 0 && c.ResizeHeight > 0, "resize dimensions must be positive, got %dx%d", c.ResizeWidth, c.ResizeHeight)
	check(c.FrameSkip > 0, "frame_skip must be positive, got %d", c.FrameSkip)
	check(c.MotionThreshold >= 0, "motion_threshold must not be negative")
	check(len(c.HazardLabels) > 0, "hazard_labels must name at least one label")
	check(c.ConfirmWindow > 0, "confirm_window must be positive")
	check(c.ConfirmPollInterval > 0, "confirm_poll_interval must be positive")
	check(c.ConfirmGracePeriod > 0, "confirm_grace_period must be positive")
	check(len(c.SensorCommand) > 0, "sensor_command is required")
	check(c.GPSEndpoint != "", "gps_endpoint is required")
	check(c.GPSRetries > 0, "gps_retries must be positive, got %d", c.GPSRetries)
	check(c.GPSRetryDelay >= 0, "gps_retry_delay must not be negative")
	check(c.GPSTimeout > 0, "gps_timeout must be positive")
	check(c.CycleDelay >= 0, "cycle_delay must not be negative")
	check(c.AlertTimeout > 0, "alert_timeout must be positive")
	check(c.FrameWait > 0, "frame_wait must be positive")
	check(c.ReadRetryDelay > 0, "read_retry_delay must be positive")
	if c.SaveFrames {
		check(c.FrameBufferLimit > 0, "frame_buffer_limit must be positive")
		check(c.FrameFlushInterval > 0, "frame_flush_interval must be positive")
	}

	return errors.Join(errs...)
}

// ParseHazardLabels parses "Label:Kind:Threshold" entries separated by commas.
// Order is preserved; it is the verdict priority.
func ParseHazardLabels(s string) ([]LabelThreshold, error) {
	var labels []LabelThreshold
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: hazard label %q must be Label:Kind:Threshold", ErrInvalid, entry)
		}
		threshold, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("%w: hazard label %q has threshold outside [0,1]", ErrInvalid, entry)
		}
		labels = append(labels, LabelThreshold{
			Label:     strings.TrimSpace(parts[0]),
			Kind:      strings.TrimSpace(parts[1]),
			Threshold: threshold,
		})
	}
	return labels, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
