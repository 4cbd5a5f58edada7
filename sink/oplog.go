package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"capital-bot/domain/event"
)

// OpLogSink appends one JSON object per line to a per-day log file:
// {"timestamp": ..., "type": "SYSTEM"|"OPERATION"|"ERROR", ...context}.
// The file layout is a data contract consumed by the presentation shell,
// so lines are marshalled directly instead of going through slog.
type OpLogSink struct {
	dir string
	log *slog.Logger

	mu      sync.Mutex
	day     string
	file    *os.File
	encoder *json.Encoder
}

func NewOpLogSink(dir string, log *slog.Logger) *OpLogSink {
	return &OpLogSink{dir: dir, log: log}
}

func (s *OpLogSink) Consume(_ context.Context, e event.DomainEvent) error {
	line := map[string]any{}
	var at time.Time

	switch evt := e.(type) {
	case event.OperationApplied:
		at = evt.At
		line["groupId"] = evt.GroupID
		line["action"] = evt.Action
		if evt.User != nil {
			line["user"] = evt.User
		}
		line["before"] = evt.Before
		line["after"] = evt.After
		if evt.Expression != "" {
			line["expression"] = evt.Expression
		}
		if evt.Comment != "" {
			line["comment"] = evt.Comment
		}
	case event.UnauthorizedAccess:
		at = evt.At
		line["error"] = "未授权访问"
		line["groupId"] = evt.GroupID
		line["user"] = evt.User
		line["message"] = evt.Body
	case event.SystemEvent:
		at = evt.At
		line["event"] = evt.Event
		for k, v := range evt.Details {
			line[k] = v
		}
	case event.DeliveryFailed:
		at = evt.At
		line["error"] = "消息发送失败"
		line["targetId"] = evt.TargetID
		line["attempts"] = evt.Attempts
		line["reason"] = evt.Reason
	case event.HandlerFailure:
		at = evt.At
		line["error"] = evt.Err
		line["groupId"] = evt.GroupID
		line["context"] = evt.Context
	default:
		return nil
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	line["timestamp"] = at.Format(time.RFC3339Nano)
	line["type"] = e.EventType()

	s.mu.Lock()
	defer s.mu.Unlock()
	encoder, err := s.encoderFor(at)
	if err != nil {
		return err
	}
	return encoder.Encode(line)
}

// Close flushes the current log file. Safe to call more than once.
func (s *OpLogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.encoder = nil
	return err
}

// encoderFor rotates to a new file when the calendar day changes.
func (s *OpLogSink) encoderFor(at time.Time) (*json.Encoder, error) {
	day := at.Format("2006-01-02")
	if s.encoder != nil && day == s.day {
		return s.encoder, nil
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(s.dir, day+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	s.day = day
	s.file = file
	s.encoder = json.NewEncoder(file)
	return s.encoder, nil
}
