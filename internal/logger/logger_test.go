package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestHelpersWriteToGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger
	SetLogger(zap.New(core))
	defer func() { Logger = prev }()

	Info("stage entered", zap.String("stage", "Chunking"))
	Warn("index release failed")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "stage entered", entries[0].Message)
	assert.Equal(t, "Chunking", entries[0].ContextMap()["stage"])
}

func TestGetLoggerWithoutInit(t *testing.T) {
	prev := Logger
	Logger = nil
	defer func() { Logger = prev }()

	assert.NotNil(t, GetLogger())
	Info("dropped")
}
