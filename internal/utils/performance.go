package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// Slow-stage thresholds. Model training routinely takes a few seconds.
const (
	slowStageInfo = 10 * time.Second
	slowStageWarn = 60 * time.Second
)

// Timer measures one stage of a request (fetch, train, optimize).
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

// NewTimer starts a timer for the named stage.
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
	}
}

// Stop logs the stage duration and returns it.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)

	t.log.Debug().
		Str("stage", t.name).
		Dur("duration_ms", duration).
		Msg("Stage completed")

	if duration > slowStageWarn {
		t.log.Warn().
			Str("stage", t.name).
			Dur("duration", duration).
			Msg("Slow stage detected")
	} else if duration > slowStageInfo {
		t.log.Info().
			Str("stage", t.name).
			Dur("duration", duration).
			Msg("Stage took longer than expected")
	}

	return duration
}
