// Package config - Settings loaded from YAML with CLASSIFY_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/logging"
	"github.com/nvr-ai/go-classify/models"
)

// EnvPrefix prefixes every environment override, e.g. CLASSIFY_SERVER_LISTEN.
const EnvPrefix = "CLASSIFY"

// Settings is the complete application configuration.
type Settings struct {
	Log     logging.Config           `json:"log" yaml:"log" mapstructure:"log"`
	Runtime Runtime                  `json:"runtime" yaml:"runtime" mapstructure:"runtime"`
	Models  map[string]models.Config `json:"models" yaml:"models" mapstructure:"models"`
	Server  Server                   `json:"server" yaml:"server" mapstructure:"server"`
	MQTT    MQTT                     `json:"mqtt" yaml:"mqtt" mapstructure:"mqtt"`
}

// Runtime holds settings shared by every engine.
type Runtime struct {
	// ONNXLibrary is the onnxruntime shared library path.
	ONNXLibrary string `json:"onnx_library" yaml:"onnx_library" mapstructure:"onnx_library"`
	// Threads is the default engine thread hint.
	Threads int `json:"threads" yaml:"threads" mapstructure:"threads"`
	// Resampler names the image resampler: bilinear, bicubic, lanczos or opencv.
	Resampler string `json:"resampler" yaml:"resampler" mapstructure:"resampler"`
}

// Server holds HTTP API settings.
type Server struct {
	Listen string `json:"listen" yaml:"listen" mapstructure:"listen"`
	// BodyLimit caps upload size, in echo's notation such as 8M.
	BodyLimit string `json:"body_limit" yaml:"body_limit" mapstructure:"body_limit"`
}

// MQTT holds result publishing settings.
type MQTT struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Broker   string `json:"broker" yaml:"broker" mapstructure:"broker"`
	ClientID string `json:"client_id" yaml:"client_id" mapstructure:"client_id"`
	Topic    string `json:"topic" yaml:"topic" mapstructure:"topic"`
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	QoS      byte   `json:"qos" yaml:"qos" mapstructure:"qos"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("runtime.onnx_library", "")
	v.SetDefault("runtime.threads", 0)
	v.SetDefault("runtime.resampler", "bilinear")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.body_limit", "8M")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "classify")
	v.SetDefault("mqtt.topic", "classify")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 0)
}

// Override adjusts decoded settings before they are validated.
type Override func(*Settings)

// WithModel replaces the configured model set with the single model cfg under id.
//
// It lets a one-shot run classify from a weights file and a labels file with no
// configuration file at all.
func WithModel(id string, cfg models.Config) Override {
	return func(s *Settings) {
		s.Models = map[string]models.Config{id: cfg}
	}
}

// Load reads settings from path, or searches ./classify.yaml and
// /etc/classify/classify.yaml when path is empty.
//
// Viper lowercases map keys, so model identifiers are always lowercase.
//
// Arguments:
//   - path: An explicit YAML file, or "" to search the default locations.
//   - overrides: Applied in order after decoding and before validation.
//
// Returns:
//   - *Settings: The validated settings.
//   - error: An error if an explicit file cannot be read, decoding fails, or validation fails.
func Load(path string, overrides ...Override) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("classify")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/classify")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	for _, o := range overrides {
		o(settings)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks settings that can be verified without loading models.
func (s *Settings) Validate() error {
	if len(s.Models) == 0 {
		return errors.New("config: at least one model must be configured")
	}
	if s.Runtime.Threads < 0 {
		return fmt.Errorf("config: runtime.threads must not be negative, got %d", s.Runtime.Threads)
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := images.LookupResampler(s.Runtime.Resampler); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, id := range s.ModelIDs() {
		if err := s.Models[id].Validate(); err != nil {
			return fmt.Errorf("config: model %q: %w", id, err)
		}
	}
	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" || s.MQTT.Topic == "" {
			return errors.New("config: mqtt.broker and mqtt.topic are required when mqtt is enabled")
		}
		if s.MQTT.QoS > 2 {
			return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2, got %d", s.MQTT.QoS)
		}
	}
	return nil
}

// ModelIDs returns the configured model identifiers in sorted order.
func (s *Settings) ModelIDs() []string {
	ids := make([]string, 0, len(s.Models))
	for id := range s.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
