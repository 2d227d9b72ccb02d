package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedLine struct {
	level string
	msg   string
	attrs map[string]interface{}
}

func capture() (*Logger, *[]capturedLine) {
	var lines []capturedLine
	l := NewLogger(func(level, msg string, attrs map[string]interface{}) {
		lines = append(lines, capturedLine{level, msg, attrs})
	})
	return l, &lines
}

func TestLoggerLevels(t *testing.T) {
	defer SetLevel(LevelDebug)
	l, lines := capture()

	SetLevel(LevelWarn)
	l.Info("hidden")
	l.Warnf("shown %d", 1)

	require.Len(t, *lines, 1)
	assert.Equal(t, capturedLine{"WARN", "shown 1", map[string]interface{}{}}, (*lines)[0])
}

func TestLoggerKeyValues(t *testing.T) {
	l, lines := capture()
	l.With(map[string]interface{}{"component": "test"}).Info("sent", "bytes", 4)

	require.Len(t, *lines, 1)
	assert.Equal(t, map[string]interface{}{"component": "test", "bytes": 4}, (*lines)[0].attrs)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"trace": LevelTrace, " Warning ": LevelWarn, "ERROR": LevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
