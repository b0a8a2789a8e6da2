package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "": InfoLevel, "warning": WarnLevel, "error": ErrorLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDefaultLoggerRouting(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := NewDefaultLoggerWithWriters(&stdout, &stderr, false)

	logger.Debug("hidden")
	logger.Info("file analyzed", Fields{"key": "C major"})
	logger.Error(errors.New("boom"), "file failed")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "[INFO] file analyzed")
	assert.Contains(t, stdout.String(), "key:C major")
	assert.Contains(t, stderr.String(), "[ERROR] file failed: boom")

	logger.SetLevel(DebugLevel)
	logger.Debug("shown")
	assert.Contains(t, stdout.String(), "[DEBUG] shown")
}

func TestWithFieldsAndContext(t *testing.T) {
	var stdout bytes.Buffer
	base := NewDefaultLoggerWithWriters(&stdout, &stdout, false)

	component := base.WithFields(Fields{"component": "segmenter"})
	ctx := ContextWithFields(context.Background(), Fields{"run_id": "r1"})
	component.WithContext(ctx).Info("done")

	out := stdout.String()
	assert.Contains(t, out, "component:segmenter")
	assert.Contains(t, out, "run_id:r1")

	stdout.Reset()
	base.Info("plain")
	assert.NotContains(t, stdout.String(), "component")
}

func TestSetGlobalLoggerNil(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	SetGlobalLogger(nil)
	assert.IsType(t, &NoOpLogger{}, GetGlobalLogger())
	Info("goes nowhere")
}
