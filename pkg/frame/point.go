package frame

import (
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Converts a frame to a backend point: measurement = message name, device_id as tag,
// timestamp (ms) as point time, all other fields as point fields.
func (registry *Registry) ToPoint(f Frame, gateway string) (point *write.Point, err error) {
	schema, err := registry.Lookup(f.Type)
	if err != nil {
		return
	}
	if len(f.Fields) != len(schema.Fields) {
		err = fmt.Errorf("%w: %s has %d fields, frame carries %d", ErrShape, schema.Name, len(schema.Fields), len(f.Fields))
		return
	}

	tags := map[string]string{"gateway": gateway}
	fields := make(map[string]any, len(schema.Fields))
	var ts time.Time

	for i, field := range schema.Fields {
		// Canonical types only from here on (uint64, float64, bool, string)
		value, convErr := coerce(field.Kind, f.Fields[i])
		if convErr != nil {
			err = fmt.Errorf("%w: %s.%s: %w", ErrShape, schema.Name, field.Name, convErr)
			return
		}

		switch field.Name {
		case FieldDeviceID:
			id, ok := value.(uint64)
			if !ok {
				err = fmt.Errorf("%w: %s.%s is not an unsigned integer", ErrFieldType, schema.Name, field.Name)
				return
			}
			tags[FieldDeviceID] = strconv.FormatUint(id, 10)
		case FieldTimestamp:
			millis, ok := value.(uint64)
			if !ok {
				err = fmt.Errorf("%w: %s.%s is not an unsigned integer", ErrFieldType, schema.Name, field.Name)
				return
			}
			ts = time.UnixMilli(int64(millis))
		default:
			fields[field.Name] = value
		}
	}

	if len(fields) == 0 {
		err = fmt.Errorf("message %s has no value fields to report", schema.Name)
		return
	}

	point = influxdb2.NewPoint(schema.Name, tags, fields, ts)
	return
}

// Line protocol text for one frame, millisecond precision
func (registry *Registry) LineProtocol(f Frame, gateway string) (line string, err error) {
	point, err := registry.ToPoint(f, gateway)
	if err != nil {
		return
	}
	line = write.PointToLineProtocol(point, time.Millisecond)
	return
}
