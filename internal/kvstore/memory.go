package kvstore

import (
	"fmt"
	"strconv"
	"sync"
)

type memEntry struct {
	kind  valueKind
	value string
}

// Volatile store for tests and diskless runs
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

func NewMemory() (store *Memory) {
	store = &Memory{entries: make(map[string]memEntry)}
	return
}

func (store *Memory) GetStr(key string) (value string, found bool, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	value, found, err = get(store.entries, key, kindStr)
	return
}

func (store *Memory) GetU8(key string) (value uint8, found bool, err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	raw, found, err := get(store.entries, key, kindU8)
	if err != nil || !found {
		return
	}
	value, err = parseU8(raw)
	return
}

func (store *Memory) SetStr(key string, value string) (err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	err = set(store.entries, key, memEntry{kind: kindStr, value: value})
	return
}

func (store *Memory) SetU8(key string, value uint8) (err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	err = set(store.entries, key, memEntry{kind: kindU8, value: strconv.Itoa(int(value))})
	return
}

// Writes go to a staging copy that replaces the live map only if fn succeeds
func (store *Memory) Update(fn func(tx Writer) error) (err error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	staged := &memTx{entries: make(map[string]memEntry, len(store.entries))}
	for k, v := range store.entries {
		staged.entries[k] = v
	}

	err = fn(staged)
	if err != nil {
		return
	}
	store.entries = staged.entries
	return
}

func (store *Memory) Close() (err error) {
	return
}

type memTx struct {
	entries map[string]memEntry
}

func (tx *memTx) SetStr(key string, value string) (err error) {
	err = set(tx.entries, key, memEntry{kind: kindStr, value: value})
	return
}

func (tx *memTx) SetU8(key string, value uint8) (err error) {
	err = set(tx.entries, key, memEntry{kind: kindU8, value: strconv.Itoa(int(value))})
	return
}

func get(entries map[string]memEntry, key string, want valueKind) (value string, found bool, err error) {
	if err = validateKey(key); err != nil {
		return
	}

	entry, found := entries[key]
	if !found {
		return
	}
	if entry.kind != want {
		found = false
		err = fmt.Errorf("%w: %q holds %s, read as %s", ErrKindMismatch, key, entry.kind, want)
		return
	}
	value = entry.value
	return
}

func set(entries map[string]memEntry, key string, entry memEntry) (err error) {
	if err = validateKey(key); err != nil {
		return
	}
	if existing, ok := entries[key]; ok && existing.kind != entry.kind {
		err = fmt.Errorf("%w: %q holds %s, written as %s", ErrKindMismatch, key, existing.kind, entry.kind)
		return
	}
	entries[key] = entry
	return
}

func parseU8(raw string) (value uint8, err error) {
	parsed, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		err = fmt.Errorf("corrupt u8 value %q: %w", raw, err)
		return
	}
	value = uint8(parsed)
	return
}
