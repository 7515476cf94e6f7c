package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"
)

// JSONLogEntry is one structured log line. Key carries the cache key of the
// query or store operation that logged it, lifted out of the metadata so log
// pipelines can index on it.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Severity  string                 `json:"severity,omitempty"`
	Component string                 `json:"component,omitempty"`
	Key       string                 `json:"key,omitempty"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// String renders the entry as JSON, defaulting the severity to INFO.
func (e JSONLogEntry) String() string {
	if e.Severity == "" {
		e.Severity = "INFO"
	}
	out, err := json.Marshal(e)
	if err != nil {
		log.Printf("json.Marshal: %v", err)
	}
	return string(out)
}

// metadata fields promoted to top-level entry fields
const (
	fieldComponent = "component"
	fieldKey       = "key"
)

type jsonLogger struct {
	fields  map[string]interface{}
	comp    string
	key     string
	console LogLevel
	sink    Sink
	sinkLvl LogLevel
	next    Logger
	now     func() time.Time
}

var _ SinkLogger = (*jsonLogger)(nil)

func (j *jsonLogger) derive() *jsonLogger {
	d := *j
	d.fields = copyMetadata(j.fields, nil)
	return &d
}

func (j *jsonLogger) WithContext(ctx context.Context) Logger {
	d := j.derive()
	if d.next != nil {
		d.next = d.next.WithContext(ctx)
	}
	return d
}

func (j *jsonLogger) SetSink(sink Sink, level LogLevel) {
	j.sink, j.sinkLvl = sink, level
	if next, ok := j.next.(SinkLogger); ok {
		next.SetSink(sink, level)
	}
}

// WithPrefix adds prefix to the component unless it is already there.
func (j *jsonLogger) WithPrefix(prefix string) Logger {
	d := j.derive()
	if d.comp == "" {
		d.comp = prefix
	} else if !strings.Contains(d.comp, prefix) {
		d.comp += " " + prefix
	}
	if d.next != nil {
		d.next = d.next.WithPrefix(prefix)
	}
	return d
}

func (j *jsonLogger) With(fields map[string]interface{}) Logger {
	d := j.derive()
	d.fields = copyMetadata(j.fields, fields)
	if comp, ok := d.fields[fieldComponent].(string); ok {
		d.comp = comp
		delete(d.fields, fieldComponent)
	}
	if key, ok := d.fields[fieldKey].(string); ok {
		d.key = key
		delete(d.fields, fieldKey)
	}
	if d.next != nil {
		d.next = d.next.With(fields)
	}
	return d
}

var bracketRegex = regexp.MustCompile(`\[(.*?)\]`)

// component turns "[query] [cache]" into "query, cache".
func (j *jsonLogger) component() string {
	tokens := bracketRegex.FindAllStringSubmatch(j.comp, -1)
	if len(tokens) == 0 {
		return j.comp
	}
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		names = append(names, t[1])
	}
	return strings.Join(names, ", ")
}

func (j *jsonLogger) emit(level LogLevel, severity, msg string, args []interface{}) {
	toConsole := level >= j.console
	toSink := j.sink != nil && level >= j.sinkLvl
	if !toConsole && !toSink {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	entry := JSONLogEntry{
		Timestamp: now(),
		Severity:  severity,
		Component: j.component(),
		Key:       j.key,
		Message:   msg,
		Metadata:  j.fields,
	}
	if toConsole {
		log.Println(entry)
	}
	if toSink {
		entry.Message = ansiColorStripper.ReplaceAllString(entry.Message, "")
		buf, _ := json.Marshal(entry)
		if _, err := j.sink.Write(append(buf, '\n')); err != nil {
			log.Printf("sink.Write: %v", err)
		}
	}
}

func (j *jsonLogger) Trace(msg string, args ...interface{}) {
	j.emit(LevelTrace, "TRACE", msg, args)
	if j.next != nil {
		j.next.Trace(msg, args...)
	}
}

func (j *jsonLogger) Debug(msg string, args ...interface{}) {
	j.emit(LevelDebug, "DEBUG", msg, args)
	if j.next != nil {
		j.next.Debug(msg, args...)
	}
}

func (j *jsonLogger) Info(msg string, args ...interface{}) {
	j.emit(LevelInfo, "INFO", msg, args)
	if j.next != nil {
		j.next.Info(msg, args...)
	}
}

func (j *jsonLogger) Warn(msg string, args ...interface{}) {
	j.emit(LevelWarn, "WARNING", msg, args)
	if j.next != nil {
		j.next.Warn(msg, args...)
	}
}

func (j *jsonLogger) Error(msg string, args ...interface{}) {
	j.emit(LevelError, "ERROR", msg, args)
	if j.next != nil {
		j.next.Error(msg, args...)
	}
}

func (j *jsonLogger) Fatal(msg string, args ...interface{}) {
	j.Error(msg, args...)
	os.Exit(1)
}

func (j *jsonLogger) Stack(next Logger) Logger {
	d := j.derive()
	d.next = next
	return d
}

// NewJSONLogger returns a logger printing JSON lines through the standard
// log package at the given level, or the GOQUERY_LOG_LEVEL one.
func NewJSONLogger(levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return &jsonLogger{console: level, sinkLvl: LevelNone}
}

// NewJSONLoggerWithSink returns a logger writing JSON lines to sink only.
func NewJSONLoggerWithSink(sink Sink, level LogLevel) SinkLogger {
	return &jsonLogger{console: LevelNone, sink: sink, sinkLvl: level}
}
