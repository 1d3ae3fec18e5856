// Package logging is osram's leveled, structured logger.
//
// Entries go to stderr (or any io.Writer) as either a single text line or a
// JSON object. Structured data is attached with Fields:
//
//	log := logging.New(logging.Options{Level: logging.LevelDebug})
//	log.Debug("provider request", logging.Fields{
//	    "provider": "claude",
//	    "model":    "claude-3-opus-20240229",
//	})
//
// The process logger is configured once in the root command from
// --verbose, OSRAM_LOG_LEVEL or the log_level setting.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelNone disables output entirely
	LevelNone
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a Level. Unknown names fall back to
// LevelWarn so a typo in the config never floods the terminal.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "none", "off", "quiet":
		return LevelNone
	default:
		return LevelWarn
	}
}

// Format selects how entries are rendered
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps "json" to FormatJSON; anything else is text
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields carries structured key/value data for an entry
type Fields map[string]interface{}

// LogEntry is the JSON shape of one entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Fields    Fields    `json:"fields,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Options configures a Logger
type Options struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger writes leveled entries. It is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	level  Level
	format Format
	output io.Writer
	now    func() time.Time
}

// DefaultLogger backs the package-level helpers
var DefaultLogger = New(Options{Level: LevelWarn})

func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return &Logger{
		level:  opts.Level,
		format: opts.Format,
		output: opts.Output,
		now:    time.Now,
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// Enabled reports whether entries at level would be written
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level && l.level != LevelNone
}

func (l *Logger) Debug(msg string, fields ...Fields) {
	l.write(LevelDebug, msg, nil, fields)
}

func (l *Logger) Info(msg string, fields ...Fields) {
	l.write(LevelInfo, msg, nil, fields)
}

func (l *Logger) Warn(msg string, fields ...Fields) {
	l.write(LevelWarn, msg, nil, fields)
}

func (l *Logger) Error(msg string, err error, fields ...Fields) {
	l.write(LevelError, msg, err, fields)
}

func (l *Logger) write(level Level, msg string, err error, fields []Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level || l.level == LevelNone {
		return
	}

	entry := LogEntry{
		Timestamp: l.now(),
		Level:     level.String(),
		Message:   msg,
		Fields:    mergeFields(fields),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	var line string
	if l.format == FormatJSON {
		line = encodeJSON(entry)
	} else {
		line = encodeText(entry)
	}
	fmt.Fprintln(l.output, line)
}

func mergeFields(fields []Fields) Fields {
	if len(fields) == 0 {
		return nil
	}
	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func encodeJSON(entry LogEntry) string {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":%q,"message":%q,"error":"unencodable fields: %s"}`, entry.Level, entry.Message, err)
	}
	return string(data)
}

// encodeText renders "[time] LEVEL: message error=... k=v" with keys sorted
func encodeText(entry LogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %s", entry.Timestamp.Format("2006-01-02 15:04:05.000"), entry.Level, entry.Message)

	if entry.Error != "" {
		fmt.Fprintf(&sb, " error=%q", entry.Error)
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Fields[k])
	}

	return sb.String()
}

// With returns a logger that adds fields to every entry
func (l *Logger) With(fields Fields) *FieldLogger {
	return &FieldLogger{logger: l, fields: fields}
}

// FieldLogger is a Logger with preset fields, e.g. the session id
type FieldLogger struct {
	logger *Logger
	fields Fields
}

func (fl *FieldLogger) Debug(msg string, fields ...Fields) {
	fl.logger.Debug(msg, fl.prepend(fields)...)
}

func (fl *FieldLogger) Info(msg string, fields ...Fields) {
	fl.logger.Info(msg, fl.prepend(fields)...)
}

func (fl *FieldLogger) Warn(msg string, fields ...Fields) {
	fl.logger.Warn(msg, fl.prepend(fields)...)
}

func (fl *FieldLogger) Error(msg string, err error, fields ...Fields) {
	fl.logger.Error(msg, err, fl.prepend(fields)...)
}

func (fl *FieldLogger) prepend(fields []Fields) []Fields {
	return append([]Fields{fl.fields}, fields...)
}

// Package-level helpers on DefaultLogger

func Debug(msg string, fields ...Fields) { DefaultLogger.Debug(msg, fields...) }

func Info(msg string, fields ...Fields) { DefaultLogger.Info(msg, fields...) }

func Warn(msg string, fields ...Fields) { DefaultLogger.Warn(msg, fields...) }

func Error(msg string, err error, fields ...Fields) { DefaultLogger.Error(msg, err, fields...) }

func SetLevel(level Level) { DefaultLogger.SetLevel(level) }

func SetFormat(format Format) { DefaultLogger.SetFormat(format) }

func SetOutput(w io.Writer) { DefaultLogger.SetOutput(w) }

// Configure sets the default logger from a level name; verbose forces debug.
func Configure(level string, verbose bool) {
	if verbose {
		DefaultLogger.SetLevel(LevelDebug)
		return
	}
	DefaultLogger.SetLevel(ParseLevel(level))
}
