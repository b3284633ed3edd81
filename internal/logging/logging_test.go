package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoggerCreation(t *testing.T) {
	logger := New("extractor")

	if logger.component != "extractor" {
		t.Errorf("expected component 'extractor', got '%s'", logger.component)
	}
	if logger.out != os.Stderr {
		t.Error("expected default output to be stderr")
	}
}

func TestLoggerWithDataset(t *testing.T) {
	logger := New("workflow").WithDataset("flanker")

	if logger.dataset != "flanker" {
		t.Errorf("expected dataset 'flanker', got '%s'", logger.dataset)
	}
}

func TestLoggerWithRun(t *testing.T) {
	logger := New("workflow").WithRun("01J5XYZ")

	if logger.runID != "01J5XYZ" {
		t.Errorf("expected run '01J5XYZ', got '%s'", logger.runID)
	}
}

func TestEventSerialization(t *testing.T) {
	event := Event{
		Timestamp: "2024-01-01T00:00:00Z",
		Level:     LevelInfo,
		Component: "matcher",
		Event:     "series_matched",
		Dataset:   "flanker",
		Series:    "series-001",
		Duration:  100,
		Extra: map[string]interface{}{
			"rule": "mprage",
		},
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}

	if parsed["level"] != "info" {
		t.Errorf("expected level 'info', got '%v'", parsed["level"])
	}
	if parsed["component"] != "matcher" {
		t.Errorf("expected component 'matcher', got '%v'", parsed["component"])
	}
	if parsed["series"] != "series-001" {
		t.Errorf("expected series 'series-001', got '%v'", parsed["series"])
	}
	if parsed["duration_ms"].(float64) != 100 {
		t.Errorf("expected duration_ms 100, got '%v'", parsed["duration_ms"])
	}
}

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New("extractor").WithDataset("demo").WithOutput(&buf)

	logger.Info("series_extracted", map[string]interface{}{"count": 3})
	logger.Error("extract_failed", nil, context.DeadlineExceeded)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to parse first line: %v", err)
	}
	if first.Level != LevelInfo || first.Event != "series_extracted" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.Dataset != "demo" {
		t.Errorf("expected dataset 'demo', got '%s'", first.Dataset)
	}

	var second Event
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("failed to parse second line: %v", err)
	}
	if second.Level != LevelError {
		t.Errorf("expected level 'error', got '%s'", second.Level)
	}
	if second.Error == "" {
		t.Error("expected error message to be set")
	}
}

func TestSeriesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := New("validator").WithOutput(&buf)

	logger.SeriesEvent("record_validated", "series-007", map[string]interface{}{"findings": 2})

	var event Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if event.Series != "series-007" {
		t.Errorf("expected series 'series-007', got '%s'", event.Series)
	}
}

func TestTimedEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := New("workflow").WithOutput(&buf)

	start := time.Now().Add(-250 * time.Millisecond)
	logger.TimedEvent("analyze_done", start, nil)

	var event Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if event.Duration < 250 {
		t.Errorf("expected duration >= 250ms, got %d", event.Duration)
	}
}

func TestPhaseEvent(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	PhaseEvent("apply", "flanker", 2*time.Second, nil)

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var event Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if event.Component != "workflow" {
		t.Errorf("expected component 'workflow', got '%s'", event.Component)
	}
	if event.Event != "apply" {
		t.Errorf("expected event 'apply', got '%s'", event.Event)
	}
	if event.Duration != 2000 {
		t.Errorf("expected duration 2000ms, got %d", event.Duration)
	}
}

func TestPhaseEventError(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	PhaseEvent("analyze", "flanker", 100*time.Millisecond, context.DeadlineExceeded)

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var event Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &event); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if event.Level != LevelError {
		t.Errorf("expected level 'error', got '%s'", event.Level)
	}
	if event.Error == "" {
		t.Error("expected error message to be set")
	}
}
