// Package logging provides structured JSON logging for bidsmap
// components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a structured log event
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Event     string                 `json:"event"`
	Dataset   string                 `json:"dataset,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Series    string                 `json:"series,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Logger provides structured logging
type Logger struct {
	component string
	dataset   string
	runID     string
	out       io.Writer
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{
		component: component,
		out:       os.Stderr,
	}
}

// WithDataset sets the dataset context
func (l *Logger) WithDataset(dataset string) *Logger {
	c := *l
	c.dataset = dataset
	return &c
}

// WithRun sets the run context
func (l *Logger) WithRun(runID string) *Logger {
	c := *l
	c.runID = runID
	return &c
}

// WithOutput redirects events, used by tests
func (l *Logger) WithOutput(w io.Writer) *Logger {
	c := *l
	c.out = w
	return &c
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]interface{}, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Dataset:   l.dataset,
		RunID:     l.runID,
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	fmt.Fprintln(l.out, string(data))
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Dataset:   l.dataset,
		RunID:     l.runID,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	}

	data, _ := json.Marshal(e)
	fmt.Fprintln(l.out, string(data))
}

// SeriesEvent logs a per-series pipeline event
func (l *Logger) SeriesEvent(event, seriesID string, extra map[string]interface{}) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Dataset:   l.dataset,
		RunID:     l.runID,
		Series:    seriesID,
		Extra:     extra,
	}

	data, _ := json.Marshal(e)
	fmt.Fprintln(l.out, string(data))
}

// PhaseEvent logs the completion of a workflow phase
func PhaseEvent(phase, dataset string, duration time.Duration, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: "workflow",
		Event:     phase,
		Dataset:   dataset,
		Duration:  duration.Milliseconds(),
	}

	if err != nil {
		e.Level = LevelError
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	fmt.Fprintln(os.Stderr, string(data))
}
