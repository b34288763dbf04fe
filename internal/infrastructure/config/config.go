package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the doorbell controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Network  NetworkConfig  `yaml:"network"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Audio    AudioConfig    `yaml:"audio"`
	Presence PresenceConfig `yaml:"presence"`
	Loop     LoopConfig     `yaml:"loop"`
	Settings SettingsConfig `yaml:"settings"`
	Update   UpdateConfig   `yaml:"update"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies this doorbell on the network.
type DeviceConfig struct {
	// Hostname is announced on boot and used as the remote-update identity.
	Hostname string `yaml:"hostname"`
}

// NetworkConfig controls the boot-time network check.
type NetworkConfig struct {
	// Interface restricts the check to one interface (e.g. "wlan0"). Empty means any.
	Interface string `yaml:"interface"`

	// JoinTimeout is how long to wait for a usable address at boot (seconds).
	JoinTimeout int `yaml:"join_timeout"`

	// RestartDelay is the pause before exiting after a failed join (seconds).
	RestartDelay int `yaml:"restart_delay"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTopicsConfig names the five topics the doorbell uses.
type MQTTTopicsConfig struct {
	Status       string `yaml:"status"`
	Availability string `yaml:"availability"`
	Play         string `yaml:"play"`
	Volume       string `yaml:"volume"`
	Stop         string `yaml:"stop"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// The delay is fixed: there is no backoff growth and no attempt limit.
type MQTTReconnectConfig struct {
	Delay int `yaml:"delay"`
}

// GPIOConfig selects the pin backend and the two input pins.
type GPIOConfig struct {
	// Driver is "rpio" (memory-mapped BCM pins) or "gpiocdev" (character device).
	Driver string `yaml:"driver"`

	// Chip is the gpiocdev chip name, e.g. "gpiochip0". Ignored by rpio.
	Chip string `yaml:"chip"`

	MotionPin int `yaml:"motion_pin"`
	BusyPin   int `yaml:"busy_pin"`

	// BusyActiveLow treats a low busy line as "playing".
	// Default: true (matches the DFPlayer BUSY output).
	BusyActiveLow bool `yaml:"busy_active_low"`
}

// AudioConfig configures the MP3 module.
type AudioConfig struct {
	// Driver is "dfplayer" (serial module) or "exec" (subprocess player).
	Driver string `yaml:"driver"`

	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`

	// Player and TrackDir are used by the exec driver: Player is run with
	// the path of the selected track file as its last argument.
	Player     string   `yaml:"player"`
	PlayerArgs []string `yaml:"player_args"`
	TrackDir   string   `yaml:"track_dir"`

	// SettleDelay is the pause after each module command (milliseconds).
	SettleDelay int `yaml:"settle_delay"`

	// BootDelay is the pause after resetting the module (milliseconds).
	BootDelay int `yaml:"boot_delay"`

	// DefaultVolume is used when no volume has been persisted yet.
	DefaultVolume int `yaml:"default_volume"`

	// CatalogSize is the highest track index picked for autonomous playback.
	CatalogSize int `yaml:"catalog_size"`
}

// PresenceConfig configures the presence state machine.
type PresenceConfig struct {
	// Cooldown is the minimum time between two presence triggers (seconds).
	Cooldown int `yaml:"cooldown"`
}

// LoopConfig configures the main loop.
type LoopConfig struct {
	// TickInterval is the sleep at the end of each tick (milliseconds).
	TickInterval int `yaml:"tick_interval"`
}

// SettingsConfig contains the settings database location.
type SettingsConfig struct {
	Path        string `yaml:"path"`
	Namespace   string `yaml:"namespace"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// UpdateConfig configures the remote-update channel.
type UpdateConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// Secret is the shared secret in plain text. Prefer SecretHash.
	Secret string `yaml:"secret"`

	// SecretHash is an Argon2id PHC string of the shared secret.
	SecretHash string `yaml:"secret_hash"`

	// StagingPath is where an uploaded image is written before restart.
	StagingPath string `yaml:"staging_path"`

	// InstallPath is where the staged image is moved before the restart.
	// Empty leaves the image at StagingPath for an external installer.
	InstallPath string `yaml:"install_path"`

	// MaxImageSize limits the upload size (bytes).
	MaxImageSize int64 `yaml:"max_image_size"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DOORBELL_SECTION_KEY
// For example: DOORBELL_MQTT_HOST, DOORBELL_SETTINGS_PATH
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the reference hardware defaults.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Hostname: "doorbell",
		},
		Network: NetworkConfig{
			JoinTimeout:  30,
			RestartDelay: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "doorbell",
			},
			QoS: 0,
			Topics: MQTTTopicsConfig{
				Status:       "doorbell/status",
				Availability: "doorbell/availability",
				Play:         "doorbell/play",
				Volume:       "doorbell/volume",
				Stop:         "doorbell/stop",
			},
			Reconnect: MQTTReconnectConfig{
				Delay: 5,
			},
		},
		GPIO: GPIOConfig{
			Driver:        "gpiocdev",
			Chip:          "gpiochip0",
			MotionPin:     18,
			BusyPin:       22,
			BusyActiveLow: true,
		},
		Audio: AudioConfig{
			Driver:        "dfplayer",
			SerialPort:    "/dev/serial0",
			BaudRate:      9600,
			SettleDelay:   200,
			BootDelay:     1000,
			DefaultVolume: 17,
			CatalogSize:   44,
		},
		Presence: PresenceConfig{
			Cooldown: 30,
		},
		Loop: LoopConfig{
			TickInterval: 50,
		},
		Settings: SettingsConfig{
			Path:        "./data/doorbell.db",
			Namespace:   "settings",
			BusyTimeout: 5,
		},
		Update: UpdateConfig{
			Listen:       ":8266",
			StagingPath:  "./data/doorbell.next",
			MaxImageSize: 64 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOORBELL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DOORBELL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DOORBELL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("DOORBELL_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}
	if v := os.Getenv("DOORBELL_UPDATE_SECRET"); v != "" {
		cfg.Update.Secret = v
	}
	if v := os.Getenv("DOORBELL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.Hostname == "" {
		errs = append(errs, "device.hostname is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Delay < 1 {
		errs = append(errs, "mqtt.reconnect.delay must be at least 1 second")
	}
	topics := map[string]string{
		"status":       c.MQTT.Topics.Status,
		"availability": c.MQTT.Topics.Availability,
		"play":         c.MQTT.Topics.Play,
		"volume":       c.MQTT.Topics.Volume,
		"stop":         c.MQTT.Topics.Stop,
	}
	for _, role := range []string{"status", "availability", "play", "volume", "stop"} {
		if topics[role] == "" {
			errs = append(errs, fmt.Sprintf("mqtt.topics.%s is required", role))
		}
	}

	switch c.GPIO.Driver {
	case "rpio", "gpiocdev":
	default:
		errs = append(errs, "gpio.driver must be rpio or gpiocdev")
	}
	if c.GPIO.Driver == "gpiocdev" && c.GPIO.Chip == "" {
		errs = append(errs, "gpio.chip is required for the gpiocdev driver")
	}
	if c.GPIO.MotionPin < 0 || c.GPIO.BusyPin < 0 {
		errs = append(errs, "gpio pins must not be negative")
	}

	switch c.Audio.Driver {
	case "dfplayer":
		if c.Audio.SerialPort == "" {
			errs = append(errs, "audio.serial_port is required for the dfplayer driver")
		}
		if c.Audio.BaudRate <= 0 {
			errs = append(errs, "audio.baud_rate must be positive")
		}
	case "exec":
		if c.Audio.Player == "" || c.Audio.TrackDir == "" {
			errs = append(errs, "audio.player and audio.track_dir are required for the exec driver")
		}
	default:
		errs = append(errs, "audio.driver must be dfplayer or exec")
	}
	if c.Audio.CatalogSize < 1 {
		errs = append(errs, "audio.catalog_size must be at least 1")
	}
	if c.Audio.SettleDelay < 0 || c.Audio.BootDelay < 0 {
		errs = append(errs, "audio delays must not be negative")
	}

	if c.Presence.Cooldown < 0 {
		errs = append(errs, "presence.cooldown must not be negative")
	}
	if c.Loop.TickInterval < 1 {
		errs = append(errs, "loop.tick_interval must be at least 1 millisecond")
	}

	if c.Settings.Path == "" {
		errs = append(errs, "settings.path is required")
	}
	if c.Settings.Namespace == "" {
		errs = append(errs, "settings.namespace is required")
	}

	if c.Update.Enabled {
		if c.Update.Secret == "" && c.Update.SecretHash == "" {
			errs = append(errs, "update.secret or update.secret_hash is required (set DOORBELL_UPDATE_SECRET)")
		}
		if c.Update.StagingPath == "" {
			errs = append(errs, "update.staging_path is required")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReconnectDelay returns the fixed MQTT reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.Delay) * time.Second
}

// SettleDelay returns the pause after each audio module command.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Audio.SettleDelay) * time.Millisecond
}

// BootDelay returns the pause after an audio module reset.
func (c *Config) BootDelay() time.Duration {
	return time.Duration(c.Audio.BootDelay) * time.Millisecond
}

// Cooldown returns the presence trigger cooldown.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Presence.Cooldown) * time.Second
}

// TickInterval returns the main loop sleep.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Loop.TickInterval) * time.Millisecond
}

// JoinTimeout returns how long to wait for the network at boot.
func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Network.JoinTimeout) * time.Second
}

// RestartDelay returns the pause before exiting after a failed network join.
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.Network.RestartDelay) * time.Second
}
