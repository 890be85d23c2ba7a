package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicatorFoldsRepeats(t *testing.T) {
	var buf bytes.Buffer
	l := log.New()
	l.SetOutput(&buf)
	l.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	d := newDeduplicator(l, time.Hour)
	d.printf("no new links on %s", "page")
	d.printf("no new links on %s", "page")
	d.printf("no new links on %s", "page")
	d.printf("done")

	d.mu.Lock()
	d.timer.Stop()
	d.flush()
	d.mu.Unlock()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "no new links on page (3)")
	assert.Contains(t, lines[1], "done")
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	err := Setup("chatty", &buf)
	assert.Error(t, err)
	assert.Equal(t, log.InfoLevel, log.GetLevel())

	require.NoError(t, Setup("debug", &buf))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	require.NoError(t, Setup("info", &buf))
}
