package hub

import (
	"context"
	"smarthub/internal/connectivity"
	"smarthub/internal/delivery"
	"smarthub/internal/identity"
	"smarthub/internal/kvstore"
	"smarthub/internal/link"
	"smarthub/internal/link/udplink"
	"smarthub/internal/linkhealth"
	"smarthub/internal/localsensor"
	"smarthub/internal/metrics"
	"smarthub/internal/provision"
	"smarthub/internal/queue/mpmc"
	"smarthub/pkg/frame"
	"sync"
	"time"
)

type FileConfig struct {
	Gateway string `yaml:"gateway,omitempty"`
	Storage struct {
		KVPath     string `yaml:"kvPath,omitempty"`
		VolumePath string `yaml:"volumePath,omitempty"`
	} `yaml:"storage"`
	Link struct {
		Listen  string   `yaml:"listen,omitempty"`
		Air     []string `yaml:"air,omitempty"`
		Channel uint8    `yaml:"channel,omitempty"`
		Address string   `yaml:"address,omitempty"`
		// Passphrase for payload sealing; SMARTHUB_LINK_KEY overrides it
		Secret string `yaml:"secret,omitempty"`
	} `yaml:"link"`
	Backend struct {
		Address      string `yaml:"address,omitempty"`
		DialTimeout  string `yaml:"dialTimeout,omitempty"`
		WriteTimeout string `yaml:"writeTimeout,omitempty"`
	} `yaml:"backend"`
	Network struct {
		Manager  string `yaml:"manager,omitempty"` // "networkmanager" or "manual"
		SSID     string `yaml:"ssid,omitempty"`
		Password string `yaml:"password,omitempty"`
	} `yaml:"network"`
	Queue struct {
		MinSize      int    `yaml:"minSize,omitempty"`
		MaxSize      int    `yaml:"maxSize,omitempty"`
		ScaleEnabled bool   `yaml:"scaleEnabled"`
		ScaleCheck   string `yaml:"scaleInterval,omitempty"`
	} `yaml:"queue"`
	Metrics struct {
		Interval string `yaml:"collectionInterval,omitempty"`
		MaxAge   string `yaml:"maximumRetention,omitempty"`
	} `yaml:"metrics"`
	Sensors []SensorFile `yaml:"sensors,omitempty"`
}

type SensorFile struct {
	Address   string         `yaml:"address"`
	SlaveID   byte           `yaml:"slave_id"`
	Timeout   string         `yaml:"timeout,omitempty"`
	Interval  string         `yaml:"interval,omitempty"`
	Registers []RegisterFile `yaml:"modbus_registers"`
}

type RegisterFile struct {
	Register     uint16  `yaml:"register"`
	FunctionCode uint8   `yaml:"function_code"`
	Message      string  `yaml:"message"`
	Field        string  `yaml:"field,omitempty"`
	Datatype     string  `yaml:"datatype"`
	Gain         float64 `yaml:"gain"`
}

type Config struct {
	Gateway string

	// Storage
	KVPath     string
	VolumePath string

	// Wireless link
	LinkListen  string
	LinkAir     []string
	LinkChannel uint8
	LinkAddress link.Address
	LinkSecret  []byte

	// Backend
	ServerAddress string // fallback when nothing is persisted
	DialTimeout   time.Duration
	WriteTimeout  time.Duration

	// Network
	NetworkManager string
	WifiSSID       string
	WifiPassword   string

	// Receive queue boundaries
	MinQueueSize       int
	MaxQueueSize       int
	QueueScaleEnabled  bool
	QueueScaleInterval time.Duration

	// Metrics
	MetricCollectionInterval time.Duration
	MetricMaxAge             time.Duration

	Sensors []localsensor.Config
}

// One raw link payload and its origin
type Datagram struct {
	From link.Address
	Data []byte
}

type Dispatcher interface {
	Connected() (connected bool)
	Connect(ctx context.Context) (err error)
	Send(ctx context.Context, f frame.Frame) (err error)
}

type Uplink interface {
	IsConnected() (connected bool)
}

type Identities interface {
	Resolve(ctx context.Context, addr [6]byte) (id uint8, err error)
}

type Daemon struct {
	cfg        Config
	configPath string
	envPath    string
	ctx        context.Context
	cancel     context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}

	kv        kvstore.Store
	transport *udplink.Transport
	resolver  *identity.Resolver
	delivery  *delivery.Manager
	health    *linkhealth.Supervisor
	network   connectivity.Controller
	uplink    *connectivity.Supervisor
	provision *provision.Handler
	sensors   []*localsensor.Poller

	inbox *mpmc.Queue[Datagram]
	local *mpmc.Queue[frame.Frame]
	loop  *Loop

	metricsCollector *metrics.Gatherer
}
