package applog

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(hook logrus.Hook) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &bytes.Buffer{} // discard the logger's own default output
	logger.AddHook(hook)
	return logger
}

func TestBufferPoolsEntriesUntilTargetSet(t *testing.T) {
	buf := New()
	logger := newTestLogger(buf)

	logger.Info("first")
	logger.Info("second")

	var out bytes.Buffer
	buf.SetTargetWriter(&out)
	buf.Purge()

	assert.Contains(t, out.String(), "first")
	assert.Contains(t, out.String(), "second")
}

func TestBufferRelaysImmediatelyOnceTargetSet(t *testing.T) {
	buf := New()
	logger := newTestLogger(buf)

	var out bytes.Buffer
	buf.SetTargetWriter(&out)

	logger.Info("live entry")

	assert.Contains(t, out.String(), "live entry")
}

func TestPurgeWithoutTargetIsNoOp(t *testing.T) {
	buf := New()
	logger := newTestLogger(buf)
	logger.Info("pooled")

	require.NotPanics(t, func() { buf.Purge() })
}

type recordingHook struct {
	entries []*logrus.Entry
}

func (h *recordingHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h *recordingHook) Fire(e *logrus.Entry) error {
	h.entries = append(h.entries, e)
	return nil
}

func TestBufferRelaysToTargetHookInOrder(t *testing.T) {
	buf := New()
	logger := newTestLogger(buf)

	logger.Info("one")
	logger.Info("two")

	hook := &recordingHook{}
	buf.SetTargetHook(hook)
	buf.Purge()

	require.Len(t, hook.entries, 2)
	assert.Equal(t, "one", hook.entries[0].Message)
	assert.Equal(t, "two", hook.entries[1].Message)
}
