package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// LogEntry is one protocol-level log record published to consumers. Type is
// a dotted origin tag such as "client.send" or "server.audio"; Message is a
// short string or the message payload that was sent or received.
type LogEntry struct {
	ID      string      `json:"id"`
	Date    time.Time   `json:"date"`
	Type    string      `json:"type"`
	Message interface{} `json:"message"`
}

func NewLogEntry(entryType string, message interface{}) LogEntry {
	return LogEntry{
		ID:      uuid.New().String(),
		Date:    time.Now(),
		Type:    entryType,
		Message: message,
	}
}

// SessionMetadata is the first JSON line in each session log file.
type SessionMetadata struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model,omitempty"`
	StartedAt string `json:"started_at"`
}

// diagnosticLine is written for Logger output teed into the session file.
type diagnosticLine struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// LogWriter abstracts the destination for diagnostic log lines.
type LogWriter interface {
	Write(level, msg string, attrs map[string]interface{})
	Close()
}

// SessionLogWriter writes protocol log entries and diagnostic lines to a
// per-session .jsonl file.
type SessionLogWriter struct {
	mu        sync.Mutex
	file      *os.File
	logDir    string
	sessionID string
}

// NewSessionLogWriter creates the log directory and session log file,
// writes the metadata first line, and creates an .active marker file.
func NewSessionLogWriter(logDir, sessionID, model string) (*SessionLogWriter, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("storage logger: mkdir %q: %w", logDir, err)
	}

	filePath := filepath.Join(logDir, sessionID+".jsonl")
	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("storage logger: create %q: %w", filePath, err)
	}

	meta := SessionMetadata{
		SessionID: sessionID,
		Model:     model,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, _ := sonic.Marshal(meta)
	f.Write(data)
	f.Write([]byte("\n"))

	activePath := filepath.Join(logDir, sessionID+".active")
	if af, err := os.Create(activePath); err == nil {
		af.Close()
	}

	return &SessionLogWriter{
		file:      f,
		logDir:    logDir,
		sessionID: sessionID,
	}, nil
}

// Path returns the session file location.
func (w *SessionLogWriter) Path() string {
	return filepath.Join(w.logDir, w.sessionID+".jsonl")
}

// WriteEntry appends a protocol log entry.
func (w *SessionLogWriter) WriteEntry(entry LogEntry) {
	data, err := sonic.Marshal(entry)
	if err != nil {
		return
	}
	w.writeLine(data)
}

// Write appends a diagnostic log line.
func (w *SessionLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	data, err := sonic.Marshal(diagnosticLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     stringifyErrors(attrs),
	})
	if err != nil {
		return
	}
	w.writeLine(data)
}

func (w *SessionLogWriter) writeLine(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Write(data)
		w.file.Write([]byte("\n"))
	}
}

// Close flushes and closes the log file, then removes the .active marker.
func (w *SessionLogWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	activePath := filepath.Join(w.logDir, w.sessionID+".active")
	os.Remove(activePath)
}

// NewSessionLogger creates a Logger that tees output to both the base logger
// (console) and the provided LogWriter. All child loggers created via With()
// inherit this behaviour automatically.
func NewSessionLogger(baseLogger *Logger, writer LogWriter) *Logger {
	handler := func(level string, msg string, attrs map[string]interface{}) {
		if baseLogger.handlerFunc != nil {
			baseLogger.handlerFunc(level, msg, attrs)
		}
		writer.Write(level, msg, attrs)
	}

	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]interface{}),
	}
}
