package frame

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

type FieldKind uint8

const (
	KindUint FieldKind = iota
	KindFloat
	KindBool
	KindString
)

// Names of the fields the gateway stamps on every message
const (
	FieldDeviceID  string = "device_id"
	FieldTimestamp string = "timestamp"
)

// Built-in message types
const (
	TypePing        MessageType = 0
	TypeTemperature MessageType = 1
	TypeHumidity    MessageType = 2
	TypeFireAlarm   MessageType = 3
	TypeGasLeakage  MessageType = 4
)

var (
	ErrFieldNotFound = errors.New("field not defined for message type")
	ErrUnknownType   = errors.New("unknown message type")
	ErrFieldType     = errors.New("value does not match field kind")
	ErrShape         = errors.New("frame does not match its schema")
)

type FieldDesc struct {
	Name string
	Kind FieldKind
}

// Describes one message type. Name doubles as the backend measurement.
type Schema struct {
	Type   MessageType
	Name   string
	Fields []FieldDesc
}

// Load-time database of message schemas keyed by message type
type Registry struct {
	mu     sync.RWMutex
	byType map[MessageType]Schema
	byName map[string]MessageType
}

func NewRegistry() (registry *Registry) {
	registry = &Registry{
		byType: make(map[MessageType]Schema),
		byName: make(map[string]MessageType),
	}
	return
}

// Registry holding the message types every node understands
func DefaultRegistry() (registry *Registry) {
	registry = NewRegistry()

	stamped := func(fields ...FieldDesc) []FieldDesc {
		return append([]FieldDesc{{FieldDeviceID, KindUint}, {FieldTimestamp, KindUint}}, fields...)
	}
	builtin := []Schema{
		{Type: TypePing, Name: "ping", Fields: []FieldDesc{{FieldTimestamp, KindUint}}},
		{Type: TypeTemperature, Name: "temperature", Fields: stamped(FieldDesc{"temperature", KindFloat})},
		{Type: TypeHumidity, Name: "humidity", Fields: stamped(FieldDesc{"humidity", KindFloat})},
		{Type: TypeFireAlarm, Name: "fire_alarm", Fields: stamped(FieldDesc{"fire_alarm", KindBool})},
		{Type: TypeGasLeakage, Name: "gas_leakage", Fields: stamped(FieldDesc{"gas_leakage", KindUint})},
	}
	for _, schema := range builtin {
		// Built-ins never collide
		_ = registry.Register(schema)
	}
	return
}

// Adds a message type. Type ids and names must be unique.
func (registry *Registry) Register(schema Schema) (err error) {
	if schema.Name == "" {
		err = fmt.Errorf("message type %d has no name", schema.Type)
		return
	}

	seen := make(map[string]bool, len(schema.Fields))
	for _, field := range schema.Fields {
		if field.Name == "" || seen[field.Name] {
			err = fmt.Errorf("message %q has an empty or duplicate field name %q", schema.Name, field.Name)
			return
		}
		if field.Kind > KindString {
			err = fmt.Errorf("message %q field %q has unknown kind %d", schema.Name, field.Name, field.Kind)
			return
		}
		seen[field.Name] = true
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if existing, ok := registry.byType[schema.Type]; ok {
		err = fmt.Errorf("message type %d already registered as %q", schema.Type, existing.Name)
		return
	}
	if _, ok := registry.byName[schema.Name]; ok {
		err = fmt.Errorf("message name %q already registered", schema.Name)
		return
	}

	registry.byType[schema.Type] = schema
	registry.byName[schema.Name] = schema.Type
	return
}

func (registry *Registry) Lookup(msgType MessageType) (schema Schema, err error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	schema, ok := registry.byType[msgType]
	if !ok {
		err = fmt.Errorf("%w: %d", ErrUnknownType, msgType)
	}
	return
}

func (registry *Registry) LookupName(name string) (schema Schema, err error) {
	registry.mu.RLock()
	msgType, ok := registry.byName[name]
	registry.mu.RUnlock()
	if !ok {
		err = fmt.Errorf("%w: %q", ErrUnknownType, name)
		return
	}
	schema, err = registry.Lookup(msgType)
	return
}

// Creates a frame of the named type with zero values
func (registry *Registry) New(name string) (f Frame, err error) {
	schema, err := registry.LookupName(name)
	if err != nil {
		return
	}

	f.Type = schema.Type
	f.Fields = make([]any, len(schema.Fields))
	for i, field := range schema.Fields {
		f.Fields[i] = zeroValue(field.Kind)
	}
	return
}

// Checks field count and kinds against the schema
func (registry *Registry) Validate(f Frame) (err error) {
	schema, err := registry.Lookup(f.Type)
	if err != nil {
		return
	}
	if len(f.Fields) != len(schema.Fields) {
		err = fmt.Errorf("%w: %s has %d fields, frame carries %d", ErrShape, schema.Name, len(schema.Fields), len(f.Fields))
		return
	}
	for i, field := range schema.Fields {
		if _, convErr := coerce(field.Kind, f.Fields[i]); convErr != nil {
			err = fmt.Errorf("%w: %s.%s: %v", ErrShape, schema.Name, field.Name, convErr)
			return
		}
	}
	return
}

// Sets a named field, converting value to the field's kind
func (registry *Registry) Set(f *Frame, name string, value any) (err error) {
	index, kind, err := registry.fieldIndex(*f, name)
	if err != nil {
		return
	}

	converted, err := coerce(kind, value)
	if err != nil {
		err = fmt.Errorf("field %q: %w", name, err)
		return
	}
	f.Fields[index] = converted
	return
}

func (registry *Registry) Get(f Frame, name string) (value any, err error) {
	index, _, err := registry.fieldIndex(f, name)
	if err != nil {
		return
	}
	value = f.Fields[index]
	return
}

func (registry *Registry) SetDeviceID(f *Frame, id uint8) (err error) {
	err = registry.Set(f, FieldDeviceID, uint64(id))
	return
}

func (registry *Registry) SetTimestamp(f *Frame, unixMillis uint64) (err error) {
	err = registry.Set(f, FieldTimestamp, unixMillis)
	return
}

func (registry *Registry) fieldIndex(f Frame, name string) (index int, kind FieldKind, err error) {
	schema, err := registry.Lookup(f.Type)
	if err != nil {
		return
	}

	for i, field := range schema.Fields {
		if field.Name != name {
			continue
		}
		if i >= len(f.Fields) {
			err = fmt.Errorf("%w: %s carries %d fields", ErrShape, schema.Name, len(f.Fields))
			return
		}
		index, kind = i, field.Kind
		return
	}

	err = fmt.Errorf("%w: %s has no %q", ErrFieldNotFound, schema.Name, name)
	return
}

func zeroValue(kind FieldKind) (value any) {
	switch kind {
	case KindUint:
		value = uint64(0)
	case KindFloat:
		value = float64(0)
	case KindBool:
		value = false
	default:
		value = ""
	}
	return
}

// Normalizes value to the canonical Go type for kind (uint64, float64, bool, string)
func coerce(kind FieldKind, value any) (out any, err error) {
	switch kind {
	case KindUint:
		switch v := value.(type) {
		case uint64:
			out = v
		case uint:
			out = uint64(v)
		case uint32:
			out = uint64(v)
		case uint16:
			out = uint64(v)
		case uint8:
			out = uint64(v)
		case int:
			if v >= 0 {
				out = uint64(v)
			}
		case int64:
			if v >= 0 {
				out = uint64(v)
			}
		}
	case KindFloat:
		switch v := value.(type) {
		case float64:
			out = v
		case float32:
			out = float64(v)
		case uint64:
			out = float64(v)
		case int:
			out = float64(v)
		case int64:
			out = float64(v)
		}
		if f, ok := out.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out = nil
		}
	case KindBool:
		if v, ok := value.(bool); ok {
			out = v
		}
	case KindString:
		if v, ok := value.(string); ok {
			out = v
		}
	}

	if out == nil {
		err = fmt.Errorf("%w: %T(%v)", ErrFieldType, value, value)
	}
	return
}
