package backend

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend/converter"
	"github.com/stretchr/testify/assert"
)

func TestDefaultValues(t *testing.T) {
	opts := ApplyOptions()

	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Metrics)
	assert.NotNil(t, opts.TracerProvider)
	assert.Equal(t, converter.DefaultConverter, opts.Converter)
}

func TestWithLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := ApplyOptions(WithLogger(logger))

	assert.Same(t, logger, opts.Logger)
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	opts := ApplyOptions(WithLogger(nil))

	assert.NotNil(t, opts.Logger)
}

func TestRemovalOptions(t *testing.T) {
	now := time.Now()

	all := ApplyRemovalOptions()
	assert.True(t, all.ShouldRemove(now))

	before := ApplyRemovalOptions(RemoveFinishedBefore(now))
	assert.True(t, before.ShouldRemove(now.Add(-time.Minute)))
	assert.False(t, before.ShouldRemove(now))
	assert.False(t, before.ShouldRemove(now.Add(time.Minute)))
}
