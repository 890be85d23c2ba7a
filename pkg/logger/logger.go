package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger. An unknown level falls back to info.
func Setup(level string, out io.Writer) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

var dedup = newDeduplicator(log.StandardLogger(), 2*time.Second)

// deduplicator collapses runs of identical messages into one line with a count.
type deduplicator struct {
	mu         sync.Mutex
	out        log.FieldLogger
	lastMsg    string
	count      int
	flushDelay time.Duration
	timer      *time.Timer
}

func newDeduplicator(out log.FieldLogger, flushDelay time.Duration) *deduplicator {
	return &deduplicator{out: out, flushDelay: flushDelay}
}

func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	if d.count == 1 {
		d.out.Info(d.lastMsg)
	} else {
		d.out.Infof("%s (%d)", d.lastMsg, d.count)
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *deduplicator) schedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flush()
	})
}

func (d *deduplicator) printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	d.mu.Lock()
	defer d.mu.Unlock()

	if msg == d.lastMsg {
		d.count++
		d.schedule()
		return
	}

	d.flush()
	d.lastMsg = msg
	d.count = 1
	d.schedule()
}

// Dedup logs at info level, folding consecutive repeats of the same message.
func Dedup(format string, args ...any) {
	dedup.printf(format, args...)
}

// Flush writes any pending deduplicated message immediately.
func Flush() {
	dedup.mu.Lock()
	defer dedup.mu.Unlock()
	if dedup.timer != nil {
		dedup.timer.Stop()
	}
	dedup.flush()
}
