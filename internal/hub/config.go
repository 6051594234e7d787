package hub

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"smarthub/internal/global"
	"smarthub/internal/link"
	"smarthub/internal/localsensor"
	"time"

	dotenv "github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, normally kept in the .env next to the config file
const (
	EnvLinkKey       string = "SMARTHUB_LINK_KEY"
	EnvWifiSSID      string = "SMARTHUB_WIFI_SSID"
	EnvWifiPassword  string = "SMARTHUB_WIFI_PASSWORD"
	EnvServerAddress string = "SMARTHUB_SERVER_ADDRESS"
)

const (
	NetworkManagerDBus string = "networkmanager"
	NetworkManual      string = "manual"
)

// Loads YAML config from file, then applies environment overrides (env file optional)
func LoadConfig(path, envPath string) (cfg FileConfig, err error) {
	configFile, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read config file: %w", err)
		return
	}

	err = yaml.Unmarshal(configFile, &cfg)
	if err != nil {
		err = fmt.Errorf("invalid config syntax in '%s': %w", path, err)
		return
	}

	if envPath != "" {
		err = dotenv.Load(envPath)
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		} else if err != nil {
			err = fmt.Errorf("failed to load environment file '%s': %w", envPath, err)
			return
		}
	}
	cfg.applyEnv()
	return
}

func (cfg *FileConfig) applyEnv() {
	if value := os.Getenv(EnvLinkKey); value != "" {
		cfg.Link.Secret = value
	}
	if value := os.Getenv(EnvWifiSSID); value != "" {
		cfg.Network.SSID = value
	}
	if value := os.Getenv(EnvWifiPassword); value != "" {
		cfg.Network.Password = value
	}
	if value := os.Getenv(EnvServerAddress); value != "" {
		cfg.Backend.Address = value
	}
}

// Parses file config into daemon config
func (cfg FileConfig) NewDaemonConf() (config Config, err error) {
	config.Gateway = cfg.Gateway
	config.KVPath = cfg.Storage.KVPath
	config.VolumePath = cfg.Storage.VolumePath

	// Link settings
	config.LinkListen = cfg.Link.Listen
	config.LinkAir = cfg.Link.Air
	config.LinkChannel = cfg.Link.Channel
	if cfg.Link.Address != "" {
		config.LinkAddress, err = link.ParseAddress(cfg.Link.Address)
		if err != nil {
			err = fmt.Errorf("invalid link address: %w", err)
			return
		}
	}
	if cfg.Link.Secret != "" {
		config.LinkSecret = []byte(cfg.Link.Secret)
	}

	// Backend settings
	config.ServerAddress = cfg.Backend.Address
	config.DialTimeout, err = parseOptionalDuration(cfg.Backend.DialTimeout)
	if err != nil {
		err = fmt.Errorf("failed to parse backend dial timeout: %w", err)
		return
	}
	config.WriteTimeout, err = parseOptionalDuration(cfg.Backend.WriteTimeout)
	if err != nil {
		err = fmt.Errorf("failed to parse backend write timeout: %w", err)
		return
	}

	// Network settings
	config.NetworkManager = cfg.Network.Manager
	switch config.NetworkManager {
	case "", NetworkManagerDBus, NetworkManual:
	default:
		err = fmt.Errorf("unknown network manager %q", config.NetworkManager)
		return
	}
	config.WifiSSID = cfg.Network.SSID
	config.WifiPassword = cfg.Network.Password

	// Queue settings
	config.MinQueueSize = cfg.Queue.MinSize
	config.MaxQueueSize = cfg.Queue.MaxSize
	config.QueueScaleEnabled = cfg.Queue.ScaleEnabled
	config.QueueScaleInterval, err = parseOptionalDuration(cfg.Queue.ScaleCheck)
	if err != nil {
		err = fmt.Errorf("failed to parse queue scale interval: %w", err)
		return
	}

	// Metric settings
	config.MetricCollectionInterval, err = parseOptionalDuration(cfg.Metrics.Interval)
	if err != nil {
		err = fmt.Errorf("failed to parse metric collection interval time: %w", err)
		return
	}
	config.MetricMaxAge, err = parseOptionalDuration(cfg.Metrics.MaxAge)
	if err != nil {
		err = fmt.Errorf("failed to parse metric max age time: %w", err)
		return
	}

	// Local sensors
	for i, sensor := range cfg.Sensors {
		var sensorConf localsensor.Config
		sensorConf, err = sensor.toPollerConf()
		if err != nil {
			err = fmt.Errorf("sensor %d (%s): %w", i, sensor.Address, err)
			return
		}
		config.Sensors = append(config.Sensors, sensorConf)
	}
	return
}

func (sensor SensorFile) toPollerConf() (conf localsensor.Config, err error) {
	if sensor.Address == "" {
		err = fmt.Errorf("missing address")
		return
	}
	conf.Address = sensor.Address
	conf.SlaveID = sensor.SlaveID

	conf.Timeout, err = parseOptionalDuration(sensor.Timeout)
	if err != nil {
		err = fmt.Errorf("failed to parse timeout: %w", err)
		return
	}
	conf.Interval, err = parseOptionalDuration(sensor.Interval)
	if err != nil {
		err = fmt.Errorf("failed to parse interval: %w", err)
		return
	}

	for _, reg := range sensor.Registers {
		conf.Registers = append(conf.Registers, localsensor.Register{
			Message:      reg.Message,
			Field:        reg.Field,
			Address:      reg.Register,
			FunctionCode: reg.FunctionCode,
			Datatype:     reg.Datatype,
			Gain:         reg.Gain,
		})
	}
	return
}

// Empty means "use the default"
func parseOptionalDuration(text string) (duration time.Duration, err error) {
	if text == "" {
		return
	}
	duration, err = time.ParseDuration(text)
	if err == nil && duration < 0 {
		err = fmt.Errorf("negative duration %q", text)
	}
	return
}

// Copy of the config as the daemon would run it
func (cfg Config) Effective() (effective Config) {
	cfg.setDefaults()
	effective = cfg
	return
}

// Sets defaults for any missing/invalid values
func (cfg *Config) setDefaults() {
	if cfg.Gateway == "" {
		cfg.Gateway = global.Hostname
	}

	// Storage
	if cfg.KVPath == "" {
		cfg.KVPath = global.DefaultKVPath
	}
	if cfg.VolumePath == "" {
		cfg.VolumePath = global.DefaultVolumePath
	}

	// Link
	if cfg.LinkChannel == 0 {
		cfg.LinkChannel = global.LinkDefaultChannel
	}

	// Backend
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = global.DefaultServerAddr
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = global.DefaultDialTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = global.DefaultWriteTimeout
	}

	// Network
	if cfg.NetworkManager == "" {
		cfg.NetworkManager = NetworkManagerDBus
	}

	// Queue
	if cfg.MinQueueSize <= 0 {
		cfg.MinQueueSize = global.DefaultMinQueueSize
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = global.DefaultMaxQueueSize
	}
	cfg.MinQueueSize = ceilPow2(cfg.MinQueueSize)
	cfg.MaxQueueSize = ceilPow2(cfg.MaxQueueSize)
	if cfg.MaxQueueSize < cfg.MinQueueSize {
		cfg.MaxQueueSize = cfg.MinQueueSize
	}
	if cfg.QueueScaleInterval == 0 {
		cfg.QueueScaleInterval = 5 * time.Second
	}

	// Metrics
	if cfg.MetricCollectionInterval == 0 {
		cfg.MetricCollectionInterval = global.DefaultMetricInterval
	}
	if cfg.MetricMaxAge == 0 {
		cfg.MetricMaxAge = global.DefaultMetricMaxAge
	}
}

// Queue capacities must be powers of two
func ceilPow2(n int) (size int) {
	size = 2
	for size < n {
		size <<= 1
	}
	return
}
