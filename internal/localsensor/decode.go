package localsensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Register encodings, big-endian by byte unless noted
const (
	TypeU16   string = "U16"
	TypeS16   string = "S16"
	TypeU32   string = "U32"
	TypeS32   string = "S32"
	TypeU32LE string = "U32LE" // low word first
	TypeF32BE string = "F32BE"
)

func wordsFor(datatype string) (words uint16, err error) {
	switch datatype {
	case TypeU16, TypeS16:
		words = 1
	case TypeU32, TypeS32, TypeU32LE, TypeF32BE:
		words = 2
	default:
		err = fmt.Errorf("unknown register datatype %q", datatype)
	}
	return
}

// Raw register bytes to a scaled reading
func decode(datatype string, raw []byte, gain float64) (value float64, err error) {
	words, err := wordsFor(datatype)
	if err != nil {
		return
	}
	if len(raw) != int(words)*2 {
		err = fmt.Errorf("unexpected register length: got %d bytes, want %d", len(raw), words*2)
		return
	}

	switch datatype {
	case TypeU16:
		value = float64(binary.BigEndian.Uint16(raw))
	case TypeS16:
		value = float64(int16(binary.BigEndian.Uint16(raw)))
	case TypeU32:
		value = float64(binary.BigEndian.Uint32(raw))
	case TypeS32:
		value = float64(int32(binary.BigEndian.Uint32(raw)))
	case TypeU32LE:
		low := binary.BigEndian.Uint16(raw[0:2])
		high := binary.BigEndian.Uint16(raw[2:4])
		value = float64(uint32(low) | uint32(high)<<16)
	case TypeF32BE:
		value = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	}

	if gain != 0 {
		value *= gain
	}
	return
}
