package global

import "time"

const (
	// Descriptive Names for available verbosity levels
	VerbosityNone int = iota
	VerbosityStandard
	VerbosityProgress
	VerbosityData
	VerbosityFullData
	VerbosityDebug

	// Descriptive names for available severity levels
	ErrorLog string = "Error"
	WarnLog  string = "Warn"
	InfoLog  string = "Info"
)

const (
	ProgBaseName string = "smarthub"
	ProgVersion  string = "v0.3.0"

	// Context keys
	LoggerKey  CtxKey = "logger"  // Event queue (mostly for variable log verbosity handling)
	LogTagsKey CtxKey = "logtags" // List of tags in order of broad->specific appended/popped at various parts of the program

	DefaultBinaryPath string = "/usr/local/bin/smarthub"
	DefaultConfigDir  string = "/etc/smarthub"
	DefaultUnitPath   string = "/etc/systemd/system/smarthub.service"
	DefaultConfigPath string = "/etc/smarthub/smarthub.yaml"
	DefaultEnvPath    string = "/etc/smarthub/.env"
	DefaultKVPath     string = "/var/lib/smarthub/nvs.db"
	DefaultVolumePath string = "/mnt/sd"

	// Backend
	DefaultServerAddr   string        = "tcp://127.0.0.1:8094"
	DefaultDialTimeout  time.Duration = 3 * time.Second
	DefaultWriteTimeout time.Duration = 2 * time.Second

	// Persisted key-value names (kept stable across firmware versions)
	KVNamespace     string = "connect_configs"
	KeyServerAddr   string = "Server IP"
	KeySlaveCount   string = "Num of slaves"
	KeyWifiSSID     string = "Wifi SSID"
	KeyWifiPassword string = "Wifi Password"

	// Durable log
	LogFileName  string = "DATA.txt"
	LogBlockSize int    = 512

	// Wireless link
	LinkMaxPayload     int           = 250
	LinkDefaultChannel uint8         = 6
	LinkDefaultPort    int           = 47474
	LinkFailThreshold  uint32        = 10
	LinkRescanDelay    time.Duration = 1 * time.Second

	// Ingestion loop timing
	TickInterval          time.Duration = 10 * time.Millisecond
	BroadcastPingInterval time.Duration = 2 * time.Second
	StorageRetryInterval  time.Duration = 2 * time.Second
	ConnectivityPoll      time.Duration = 500 * time.Millisecond
	ConnectRetryInterval  time.Duration = 5 * time.Second

	// Receive queue bounds
	DefaultMinQueueSize int = 256
	DefaultMaxQueueSize int = 4096

	// Per-origin decode buffer ceiling
	DefaultMaxAccumulated int = 4096

	// Configuration requests waiting to be handled
	ConfigRequestBacklog int = 10

	// Metrics
	DefaultMetricInterval time.Duration = 10 * time.Second
	DefaultMetricMaxAge   time.Duration = 10 * time.Minute

	ShutdownTimeout   time.Duration = 10 * time.Second
	InboxDrainTimeout time.Duration = 2 * time.Second

	// Namespacing Name Components
	NSHub       string = "Hub"
	NSTest      string = "Test"
	NSIngest    string = "Ingest"
	NSDispatch  string = "Dispatch"
	NSDelivery  string = "Delivery"
	NSLogStore  string = "LogStore"
	NSIdentity  string = "Identity"
	NSLink      string = "Link"
	NSHealth    string = "LinkHealth"
	NSConnect   string = "Connectivity"
	NSProvision string = "Provision"
	NSSensor    string = "Sensor"
	NSMetric    string = "Metrics"
	NSQueue     string = "Queue"
	NSWatcher   string = "Watcher"
	NSStatus    string = "Status"
)
