package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

type Logger struct {
	logger *log.Logger
	level  Level
	fields []interface{}
	shared *shared
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// Entry is a structured copy of one emitted log line.
type Entry struct {
	Timestamp time.Time
	Level     string
	Message   string
	Fields    map[string]interface{}
}

// Publisher receives every entry the logger emits, e.g. CloudWatch Logs.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

type shared struct {
	mu        sync.RWMutex
	publisher Publisher
}

func New(level string) *Logger {
	return NewWithWriter(os.Stdout, level)
}

func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{
		logger: log.New(w, "", 0),
		level:  parseLevel(level),
		shared: &shared{},
	}
}

func parseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetLogPublisher forwards entries of this logger and all of its children.
// Passing nil detaches the publisher.
func (l *Logger) SetLogPublisher(p Publisher) {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	l.shared.publisher = p
}

// With returns a child logger that appends the given key/value pairs to every line.
func (l *Logger) With(args ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)

	return &Logger{
		logger: l.logger,
		level:  l.level,
		fields: fields,
		shared: l.shared,
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log("DEBUG", msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= INFO {
		l.log("INFO", msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WARN {
		l.log("WARN", msg, args...)
	}
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if l.level <= ERROR {
		if err != nil {
			args = append(args, "error", err.Error())
		}
		l.log("ERROR", msg, args...)
	}
}

func (l *Logger) log(level, msg string, args ...interface{}) {
	now := time.Now()
	all := append(append([]interface{}{}, l.fields...), args...)

	message := fmt.Sprintf("[%s] [%s] %s", now.Format("2006-01-02 15:04:05"), level, msg)
	if len(all) > 0 {
		message += " |"
		for i := 0; i+1 < len(all); i += 2 {
			message += fmt.Sprintf(" %v=%v", all[i], all[i+1])
		}
	}

	l.logger.Println(message)
	l.publish(now, level, msg, all)
}

func (l *Logger) publish(ts time.Time, level, msg string, args []interface{}) {
	l.shared.mu.RLock()
	p := l.shared.publisher
	l.shared.mu.RUnlock()
	if p == nil {
		return
	}

	var fields map[string]interface{}
	if len(args) > 1 {
		fields = make(map[string]interface{}, len(args)/2)
		for i := 0; i+1 < len(args); i += 2 {
			fields[fmt.Sprint(args[i])] = args[i+1]
		}
	}

	// Publishers buffer internally; a failed publish must not recurse into the logger.
	_ = p.Publish(context.Background(), Entry{
		Timestamp: ts.UTC(),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	})
}
