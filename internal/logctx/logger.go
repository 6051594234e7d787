// Context-carried logger. Components append namespace tags to their context and emit events
// through LogEvent; a single watcher drains the queue to the configured output.
package logctx

import (
	"context"
	"fmt"
	"smarthub/internal/global"
	"strings"
	"sync"
	"time"
)

// Logger Constructor.
// Embeds logger in returned context using provided context as base.
func New(baseCtx context.Context, id string, logLevel int, done <-chan struct{}) (ctxLogger context.Context) {
	logger := &Logger{
		ID:         id,
		CreatedAt:  time.Now(),
		queue:      make([]Event, 0),
		Done:       done,
		PrintLevel: logLevel,
		wg:         &sync.WaitGroup{},
	}
	logger.cond = sync.NewCond(&logger.mutex)

	ctxLogger = context.WithValue(baseCtx, global.LoggerKey, logger)
	return
}

// Copies the logger (and nothing else) from one context into another
func Inherit(dst, src context.Context) (ctx context.Context) {
	ctx = dst
	logger := GetLogger(src)
	if logger != nil {
		ctx = context.WithValue(dst, global.LoggerKey, logger)
	}
	return
}

// Change the logger's level
func SetLogLevel(ctx context.Context, newLevel int) {
	logger := GetLogger(ctx)
	if logger != nil {
		logger.mutex.Lock()
		defer logger.mutex.Unlock()
		logger.PrintLevel = newLevel
	}
}

// Extracts Logger from context or returns nil
func GetLogger(ctx context.Context) (logger *Logger) {
	logger, ok := ctx.Value(global.LoggerKey).(*Logger)
	if !ok {
		logger = nil
	}
	return
}

// Hold main thread exit until logger is finished its work
func (logger *Logger) Wait() {
	logger.wg.Wait()
}

// Wake broadcasts to any goroutines waiting on the condition variable
func (logger *Logger) Wake() {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.cond.Broadcast()
}

// Entry for logging events
func LogEvent(ctx context.Context, eventLevel int, severity string, message string, vars ...any) {
	logger := GetLogger(ctx)
	if logger == nil {
		return
	}

	// Only format when there is something to substitute
	fullMessage := message
	if len(vars) > 0 && strings.Contains(message, "%") {
		fullMessage = fmt.Sprintf(message, vars...)
	}

	logger.log(eventLevel, severity, GetTagList(ctx), fullMessage)
}

// Queues event if the level allows it. Errors are always recorded.
func (logger *Logger) log(eventLevel int, eventSeverity string, tags []string, fullMessage string) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()

	if eventLevel > logger.PrintLevel && eventSeverity != global.ErrorLog {
		return
	}

	logger.queue = append(logger.queue, Event{
		Timestamp: time.Now(),
		Tags:      tags,
		Severity:  eventSeverity,
		Message:   fullMessage,
	})
	logger.cond.Signal()
}
