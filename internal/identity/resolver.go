// Stable small integer identities for peer nodes, persisted across restarts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"smarthub/internal/global"
	"smarthub/internal/kvstore"
	"smarthub/internal/logctx"
	"sync"
)

var ErrExhausted = errors.New("all device identities are assigned")

type Resolver struct {
	mu    sync.Mutex
	store kvstore.Store
	cache map[[6]byte]uint8
}

func New(store kvstore.Store) (resolver *Resolver) {
	resolver = &Resolver{
		store: store,
		cache: make(map[[6]byte]uint8),
	}
	return
}

// Key under which an address' identity is persisted: upper-case hex, no separators
func Key(addr [6]byte) (key string) {
	key = fmt.Sprintf("%X", addr[:])
	return
}

// Returns the identity of addr, assigning the next free one on first sight.
// Lookup, assignment and persistence happen under one lock so two callers can never
// hand out the same identity.
func (resolver *Resolver) Resolve(ctx context.Context, addr [6]byte) (id uint8, err error) {
	resolver.mu.Lock()
	defer resolver.mu.Unlock()

	if cached, ok := resolver.cache[addr]; ok {
		id = cached
		return
	}

	key := Key(addr)
	id, found, err := resolver.store.GetU8(key)
	if err != nil {
		err = fmt.Errorf("failed to look up identity of %s: %w", key, err)
		return
	}
	if found {
		resolver.cache[addr] = id
		return
	}

	// Counter absent = nothing assigned yet
	next, _, err := resolver.store.GetU8(global.KeySlaveCount)
	if err != nil {
		err = fmt.Errorf("failed to read identity counter: %w", err)
		return
	}
	exhausted, err := resolver.exhausted()
	if err != nil {
		return
	}
	if exhausted {
		err = fmt.Errorf("%w: cannot assign %s", ErrExhausted, key)
		return
	}

	// The u8 counter cannot hold 256, so handing out 255 sets a flag instead
	err = resolver.store.Update(func(tx kvstore.Writer) error {
		if next == math.MaxUint8 {
			if err := tx.SetStr(keyExhausted, "1"); err != nil {
				return err
			}
		} else if err := tx.SetU8(global.KeySlaveCount, next+1); err != nil {
			return err
		}
		return tx.SetU8(key, next)
	})
	if err != nil {
		err = fmt.Errorf("failed to persist identity %d for %s: %w", next, key, err)
		return
	}

	id = next
	resolver.cache[addr] = id
	logctx.LogEvent(ctx, global.VerbosityStandard, global.InfoLog,
		"New device %s assigned identity %d\n", key, id)
	return
}

// Number of identities handed out so far
func (resolver *Resolver) Known() (count int, err error) {
	resolver.mu.Lock()
	defer resolver.mu.Unlock()

	exhausted, err := resolver.exhausted()
	if err != nil {
		return
	}
	if exhausted {
		count = math.MaxUint8 + 1
		return
	}
	next, _, err := resolver.store.GetU8(global.KeySlaveCount)
	if err != nil {
		err = fmt.Errorf("failed to read identity counter: %w", err)
		return
	}
	count = int(next)
	return
}

const keyExhausted = "Slaves full"

func (resolver *Resolver) exhausted() (full bool, err error) {
	_, full, err = resolver.store.GetStr(keyExhausted)
	if err != nil {
		err = fmt.Errorf("failed to read identity exhaustion flag: %w", err)
	}
	return
}
