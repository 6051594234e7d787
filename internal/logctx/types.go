package logctx

import (
	"sync"
	"time"
)

// Log Event Structure
type Event struct {
	Timestamp time.Time
	Severity  string
	Tags      []string
	Message   string
}

// Logger Struct
type Logger struct {
	ID         string
	CreatedAt  time.Time
	queue      []Event    // event buffer
	mutex      sync.Mutex // protects buffer and level
	cond       *sync.Cond // signals new events to the watcher
	Done       <-chan struct{}
	PrintLevel int             // Level at which the message should be recorded
	wg         *sync.WaitGroup // Holds main execution threads until log watchers are done handling events
}

// Tracks repeated messages for the watcher
type dedupState struct {
	lastMsg          string
	repeatCount      int
	lastSuppressTime time.Time
}
