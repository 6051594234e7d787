// Append-only block log of serialized frames on a removable volume.
// Used as the fallback path while the backend is unreachable.
package logstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"smarthub/internal/codec"
	"smarthub/internal/global"
	"smarthub/internal/logctx"
	"smarthub/pkg/frame"

	"github.com/spf13/afero"
)

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrStorageReadFailed  = errors.New("storage read failed")
	ErrCorrupt            = errors.New("undecodable bytes in log")
)

// Opens (or creates) the log file on the volume.
// Bytes already in the file are read back from the start.
func Open(ctx context.Context, vol afero.Fs) (store *Store, err error) {
	file, err := vol.OpenFile(global.LogFileName, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		err = fmt.Errorf("%w: failed to open %s: %v", ErrStorageUnavailable, global.LogFileName, err)
		return
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		err = fmt.Errorf("%w: failed to stat %s: %v", ErrStorageUnavailable, global.LogFileName, err)
		return
	}

	store = &Store{
		vol:       vol,
		file:      file,
		name:      global.LogFileName,
		blockSize: global.LogBlockSize,
		size:      info.Size(),
		out:       codec.NewAccumulator(global.DefaultMaxAccumulated),
	}

	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"Opened log %s with %d bytes pending\n", store.name, store.size)
	return
}

// Serializes f into the write buffer and flushes one full block to the end of the file
// once the buffer holds at least one block.
func (store *Store) Write(ctx context.Context, f frame.Frame) (err error) {
	if store.failed {
		err = ErrStorageUnavailable
		return
	}

	data, err := f.Serialize()
	if err != nil {
		err = fmt.Errorf("failed to serialize frame for log: %w", err)
		return
	}
	store.inBuffer = append(store.inBuffer, data...)
	store.Metrics.FramesWritten.Add(1)

	if len(store.inBuffer) < store.blockSize {
		return
	}

	err = store.appendBlock(store.inBuffer[:store.blockSize])
	if err != nil {
		return
	}
	store.inBuffer = append(store.inBuffer[:0], store.inBuffer[store.blockSize:]...)
	return
}

// Reads the next block and returns every frame that became complete.
// File bytes always precede buffered writes: the write buffer is only folded in once the
// file has been read to the end. A fully read, non-empty file is deleted and recreated empty
// after its frames were decoded. Undecodable bytes are skipped and reported as ErrCorrupt
// alongside the frames decoded around them.
func (store *Store) Read(ctx context.Context) (frames []frame.Frame, err error) {
	if store.failed {
		err = ErrStorageUnavailable
		return
	}

	var data []byte
	if store.readOffset < store.size {
		data, err = store.readBlock()
		if err != nil {
			return
		}
	}

	drained := store.readOffset >= store.size
	if drained && len(store.inBuffer) > 0 {
		data = append(data, store.inBuffer...)
		store.inBuffer = nil
	}

	frames, decodeErr := store.out.Feed(data)

	// Step over undecodable bytes one at a time so frames behind them survive
	var discarded int
	for errors.Is(decodeErr, frame.ErrMalformed) {
		discarded += store.out.Skip(1)

		var more []frame.Frame
		more, decodeErr = store.out.Feed(nil)
		frames = append(frames, more...)
	}
	if decodeErr != nil {
		// Overflow without a complete frame, nothing left to resync on
		discarded += store.out.Buffered()
		store.out.Reset()
	}
	store.Metrics.BytesDiscarded.Add(uint64(discarded))

	if len(frames) > 0 {
		store.Metrics.FramesRead.Add(uint64(len(frames)))
	}

	if drained && store.size > 0 {
		err = store.compact(ctx)
		if err != nil {
			// Frames already decoded are still handed out
			return
		}
	}

	if discarded > 0 {
		err = fmt.Errorf("%w: discarded %d bytes", ErrCorrupt, discarded)
	}
	return
}

// Writes whatever is buffered as a final short block. Used before a clean shutdown.
func (store *Store) FlushPartial() (err error) {
	if store.failed {
		err = ErrStorageUnavailable
		return
	}
	if len(store.inBuffer) == 0 {
		return
	}

	err = store.appendBlock(store.inBuffer)
	if err != nil {
		return
	}
	store.inBuffer = nil
	return
}

func (store *Store) Close() (err error) {
	if store.file == nil {
		return
	}
	err = store.file.Close()
	store.file = nil
	store.failed = true
	return
}

// True once any I/O error happened. A failed store must be dropped and reopened.
func (store *Store) Failed() (failed bool) {
	failed = store.failed
	return
}

// Bytes accepted by Write that are not yet on the medium
func (store *Store) Pending() (n int) {
	n = len(store.inBuffer)
	return
}

// Current size of the backing file
func (store *Store) Size() (n int64) {
	n = store.size
	return
}

// Bytes in the file not yet read back
func (store *Store) Unread() (n int64) {
	n = store.size - store.readOffset
	return
}

func (store *Store) appendBlock(block []byte) (err error) {
	_, err = store.file.Seek(0, io.SeekEnd)
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: failed to seek to end of log: %v", ErrStorageWriteFailed, err)
		return
	}

	n, err := store.file.Write(block)
	store.size += int64(n)
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: wrote %d of %d bytes: %v", ErrStorageWriteFailed, n, len(block), err)
		return
	}

	err = store.file.Sync()
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: failed to sync log: %v", ErrStorageWriteFailed, err)
		return
	}

	store.Metrics.BlocksWritten.Add(1)
	return
}

func (store *Store) readBlock() (data []byte, err error) {
	_, err = store.file.Seek(store.readOffset, io.SeekStart)
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: failed to seek to %d: %v", ErrStorageReadFailed, store.readOffset, err)
		return
	}

	want := min(int64(store.blockSize), store.size-store.readOffset)
	data = make([]byte, want)
	n, err := io.ReadFull(store.file, data)
	data = data[:n]
	store.readOffset += int64(n)
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: read %d of %d bytes at %d: %v", ErrStorageReadFailed, n, want, store.readOffset, err)
		return
	}

	store.Metrics.BlocksRead.Add(1)
	return
}

// Deletes the fully read file and starts an empty one
func (store *Store) compact(ctx context.Context) (err error) {
	err = store.file.Close()
	store.file = nil
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: failed to close drained log: %v", ErrStorageWriteFailed, err)
		return
	}

	err = store.vol.Remove(store.name)
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: failed to delete drained log: %v", ErrStorageWriteFailed, err)
		return
	}

	store.file, err = store.vol.OpenFile(store.name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		store.failed = true
		err = fmt.Errorf("%w: failed to recreate log: %v", ErrStorageWriteFailed, err)
		return
	}

	logctx.LogEvent(ctx, global.VerbosityData, global.InfoLog,
		"Log drained, compacted %d bytes\n", store.size)

	store.size = 0
	store.readOffset = 0
	store.Metrics.Compactions.Add(1)
	return
}
