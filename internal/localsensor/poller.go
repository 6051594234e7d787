// Sensors wired to the hub itself, read over Modbus TCP and turned into frames
// like the ones peers send.
package localsensor

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"smarthub/pkg/frame"
	"time"

	"github.com/goburrow/modbus"
)

const (
	FunctionHolding uint8 = 3
	FunctionInput   uint8 = 4
)

type Register struct {
	Message      string // message type the reading becomes, e.g. "temperature"
	Field        string // value field; defaults to Message
	Address      uint16
	FunctionCode uint8
	Datatype     string
	Gain         float64
}

type Config struct {
	Address   string // host:port of the Modbus TCP gateway
	SlaveID   byte
	Timeout   time.Duration
	Interval  time.Duration
	Registers []Register
}

// Register access, satisfied by modbus.Client
type Reader interface {
	ReadHoldingRegisters(address, quantity uint16) (results []byte, err error)
	ReadInputRegisters(address, quantity uint16) (results []byte, err error)
}

// Emit receives every produced frame; returning false means it was dropped
type Emit func(f frame.Frame) (accepted bool)

type Poller struct {
	conf     Config
	registry *frame.Registry
	emit     Emit
	reader   Reader

	handler *modbus.TCPClientHandler
}

func (conf *Config) setDefaults() {
	if conf.Timeout == 0 {
		conf.Timeout = 5 * time.Second
	}
	if conf.Interval == 0 {
		conf.Interval = 10 * time.Second
	}
	for i := range conf.Registers {
		if conf.Registers[i].Field == "" {
			conf.Registers[i].Field = conf.Registers[i].Message
		}
		if conf.Registers[i].FunctionCode == 0 {
			conf.Registers[i].FunctionCode = FunctionHolding
		}
	}
}

// Validates registers against the message registry. The Modbus connection is opened by Run.
func New(conf Config, registry *frame.Registry, emit Emit) (poller *Poller, err error) {
	conf.setDefaults()

	for _, reg := range conf.Registers {
		_, err = fieldKind(registry, reg)
		if err != nil {
			return
		}
		_, err = wordsFor(reg.Datatype)
		if err != nil {
			err = fmt.Errorf("register %d: %w", reg.Address, err)
			return
		}
		if reg.FunctionCode != FunctionHolding && reg.FunctionCode != FunctionInput {
			err = fmt.Errorf("register %d: unsupported function code %d", reg.Address, reg.FunctionCode)
			return
		}
	}

	poller = &Poller{conf: conf, registry: registry, emit: emit}
	return
}

func (poller *Poller) Run(ctx context.Context) {
	ctx = logctx.AppendCtxTag(ctx, global.NSSensor)

	if poller.reader == nil {
		handler := modbus.NewTCPClientHandler(poller.conf.Address)
		handler.Timeout = poller.conf.Timeout
		handler.SlaveId = poller.conf.SlaveID
		poller.handler = handler
		poller.reader = modbus.NewClient(handler)
		defer handler.Close()
	}

	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Polling %d registers on %s every %s\n", len(poller.conf.Registers), poller.conf.Address, poller.conf.Interval)

	ticker := time.NewTicker(poller.conf.Interval)
	defer ticker.Stop()

	for {
		poller.pollOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Reads every register once and emits a frame per successful reading
func (poller *Poller) pollOnce(ctx context.Context) (emitted int) {
	defer func() {
		if fatalError := recover(); fatalError != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.ErrorLog,
				"panic while polling sensors: %v\n%s", fatalError, debug.Stack())
		}
	}()

	for _, reg := range poller.conf.Registers {
		f, err := poller.read(reg)
		if err != nil {
			logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog,
				"failed to read register %d (%s): %v\n", reg.Address, reg.Message, err)
			if poller.handler != nil {
				// Next read reconnects
				poller.handler.Close()
			}
			continue
		}

		if !poller.emit(f) {
			logctx.LogEvent(ctx, global.VerbosityProgress, global.WarnLog,
				"dropped %s reading: ingestion queue full\n", reg.Message)
			continue
		}
		emitted++
	}
	return
}

func (poller *Poller) read(reg Register) (f frame.Frame, err error) {
	words, err := wordsFor(reg.Datatype)
	if err != nil {
		return
	}

	var raw []byte
	switch reg.FunctionCode {
	case FunctionInput:
		raw, err = poller.reader.ReadInputRegisters(reg.Address, words)
	default:
		raw, err = poller.reader.ReadHoldingRegisters(reg.Address, words)
	}
	if err != nil {
		return
	}

	reading, err := decode(reg.Datatype, raw, reg.Gain)
	if err != nil {
		return
	}

	kind, err := fieldKind(poller.registry, reg)
	if err != nil {
		return
	}
	value, err := convert(kind, reading)
	if err != nil {
		return
	}

	f, err = poller.registry.New(reg.Message)
	if err != nil {
		return
	}
	err = poller.registry.Set(&f, reg.Field, value)
	return
}

func fieldKind(registry *frame.Registry, reg Register) (kind frame.FieldKind, err error) {
	schema, err := registry.LookupName(reg.Message)
	if err != nil {
		err = fmt.Errorf("register %d: %w", reg.Address, err)
		return
	}
	for _, field := range schema.Fields {
		if field.Name == reg.Field {
			kind = field.Kind
			return
		}
	}
	err = fmt.Errorf("register %d: %w: %s has no %q", reg.Address, frame.ErrFieldNotFound, reg.Message, reg.Field)
	return
}

func convert(kind frame.FieldKind, reading float64) (value any, err error) {
	switch kind {
	case frame.KindFloat:
		value = reading
	case frame.KindBool:
		value = reading != 0
	case frame.KindUint:
		if reading < 0 || math.IsNaN(reading) {
			err = fmt.Errorf("negative reading %v for unsigned field", reading)
			return
		}
		value = uint64(math.Round(reading))
	default:
		err = fmt.Errorf("register readings cannot fill field kind %d", kind)
	}
	return
}
