package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tarotcache"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Debug("d", nil)
	l.Info("i", nil)
	l.Warn("cache backend unavailable", tarotcache.Fields{"op": "get"})
	l.Error("e", nil)

	require.Len(t, hook.AllEntries(), 4)
	warn := hook.AllEntries()[2]
	assert.Equal(t, logrus.WarnLevel, warn.Level)
	assert.Equal(t, "get", warn.Data["op"])
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestNew(t *testing.T) {
	l, err := New("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	_, err = New("nope", "text")
	assert.Error(t, err)
}
