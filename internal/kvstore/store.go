// Persistent key-value settings, one namespace per store handle.
// Keys follow the flash key-value conventions of the nodes: short ASCII names, typed values.
package kvstore

import (
	"errors"
	"fmt"
)

const MaxKeyLen int = 15

var (
	ErrKeyInvalid   = errors.New("invalid key")
	ErrKindMismatch = errors.New("stored value has a different type")
)

type Reader interface {
	// found is false (with nil error) when the key was never written
	GetStr(key string) (value string, found bool, err error)
	GetU8(key string) (value uint8, found bool, err error)
}

type Writer interface {
	SetStr(key string, value string) (err error)
	SetU8(key string, value uint8) (err error)
}

type Store interface {
	Reader
	Writer
	// Applies every write made by fn atomically, or none of them if fn fails
	Update(fn func(tx Writer) error) (err error)
	Close() (err error)
}

type valueKind int

const (
	kindStr valueKind = iota
	kindU8
)

func (kind valueKind) String() (name string) {
	name = "str"
	if kind == kindU8 {
		name = "u8"
	}
	return
}

func validateKey(key string) (err error) {
	if key == "" || len(key) > MaxKeyLen {
		err = fmt.Errorf("%w: %q must be 1-%d bytes", ErrKeyInvalid, key, MaxKeyLen)
	}
	return
}
