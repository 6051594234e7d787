package logstore

import (
	"smarthub/internal/codec"
	"sync/atomic"

	"github.com/spf13/afero"
)

// Owned by a single goroutine; not safe for concurrent use
type Store struct {
	vol       afero.Fs
	file      afero.File
	name      string
	blockSize int

	size       int64 // bytes in the file
	readOffset int64 // next unread byte in the file

	inBuffer []byte             // serialized frames not yet flushed as a block
	out      *codec.Accumulator // read bytes not yet forming a whole frame

	failed bool

	Metrics MetricStorage
}

type MetricStorage struct {
	FramesWritten  atomic.Uint64
	FramesRead     atomic.Uint64
	BlocksWritten  atomic.Uint64
	BlocksRead     atomic.Uint64
	Compactions    atomic.Uint64
	BytesDiscarded atomic.Uint64
}
