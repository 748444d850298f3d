package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogRetentionDays 日志保留天数
const LogRetentionDays = 7

// Config captures logging configuration options. When Dir is empty the logger
// only writes to Console.
type Config struct {
	Level    string
	Dir      string
	Filename string
	Console  io.Writer
}

// Logger writes human readable lines to the console and, when a log directory
// is configured, JSON lines to a daily rotated file.
type Logger struct {
	config      Config
	level       slog.Level
	textHandler slog.Handler
	fileHandler slog.Handler
	logFile     *os.File
	currentDate string
	mu          sync.RWMutex
	ticker      *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// ParseLevel converts a configured level name into a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a new Logger instance.
func New(cfg Config) (*Logger, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	if cfg.Dir != "" && cfg.Filename == "" {
		cfg.Filename = "relay.log"
	}

	level := ParseLevel(cfg.Level)
	logger := &Logger{
		config:      cfg,
		level:       level,
		textHandler: NewTextHandler(cfg.Console, level),
		currentDate: time.Now().Format("2006-01-02"),
		stopCh:      make(chan struct{}),
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(logger.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.logFile = file
		logger.fileHandler = slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
		logger.startRotationChecker()
	}

	return logger, nil
}

// Discard returns a logger that drops everything. Intended for tests.
func Discard() *Logger {
	l, _ := New(Config{Level: "error", Console: io.Discard})
	return l
}

func (l *Logger) logPath() string {
	return filepath.Join(l.config.Dir, l.config.Filename)
}

func (l *Logger) startRotationChecker() {
	l.ticker = time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-l.ticker.C:
				l.checkAndRotate(time.Now())
			case <-l.stopCh:
				return
			}
		}
	}()
}

func (l *Logger) checkAndRotate(now time.Time) {
	today := now.Format("2006-01-02")
	if today != l.currentDate {
		l.rotateLogFile(today)
		l.cleanOldLogs(now)
	}
}

func (l *Logger) rotateLogFile(newDate string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		_ = l.logFile.Close()
	}

	base := strings.TrimSuffix(l.config.Filename, filepath.Ext(l.config.Filename))
	ext := filepath.Ext(l.config.Filename)
	archived := filepath.Join(l.config.Dir, fmt.Sprintf("%s-%s%s", base, l.currentDate, ext))

	if _, err := os.Stat(l.logPath()); err == nil {
		if err := os.Rename(l.logPath(), archived); err != nil {
			_ = l.textHandler.Handle(context.Background(), l.record(slog.LevelError, "rename log file failed: "+err.Error()))
		}
	}

	file, err := os.OpenFile(l.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logFile = nil
		l.fileHandler = nil
		_ = l.textHandler.Handle(context.Background(), l.record(slog.LevelError, "open log file failed: "+err.Error()))
		return
	}

	l.logFile = file
	l.currentDate = newDate
	l.fileHandler = slog.NewJSONHandler(file, &slog.HandlerOptions{Level: l.level})
}

func (l *Logger) cleanOldLogs(now time.Time) {
	entries, err := os.ReadDir(l.config.Dir)
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -LogRetentionDays)
	base := strings.TrimSuffix(l.config.Filename, filepath.Ext(l.config.Filename))
	ext := filepath.Ext(l.config.Filename)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, base+"-") || !strings.HasSuffix(name, ext) {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, base+"-"), ext)
		fileDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			_ = os.Remove(filepath.Join(l.config.Dir, name))
		}
	}
}

// Close stops rotation and closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	l.closeOnce.Do(func() {
		if l.ticker != nil {
			l.ticker.Stop()
		}
		close(l.stopCh)

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.logFile != nil {
			err = l.logFile.Close()
			l.logFile = nil
			l.fileHandler = nil
		}
	})
	return err
}

// Slog exposes a structured logger that writes to the same sinks.
func (l *Logger) Slog() *slog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fileHandler == nil {
		return slog.New(l.textHandler)
	}
	return slog.New(fanoutHandler{l.textHandler, l.fileHandler})
}

func (l *Logger) record(level slog.Level, msg string) slog.Record {
	return slog.NewRecord(time.Now(), level, msg, 0)
}

func (l *Logger) log(level slog.Level, msg string, fields ...interface{}) {
	if l == nil || level < l.level {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	r := l.record(level, msg)
	if len(fields) > 0 && fields[0] != nil {
		if fieldsMap, ok := fields[0].(map[string]interface{}); ok {
			keys := make([]string, 0, len(fieldsMap))
			for k := range fieldsMap {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				r.AddAttrs(slog.Any(k, fieldsMap[k]))
			}
		} else {
			r.AddAttrs(slog.Any("fields", fields[0]))
		}
	}

	ctx := context.Background()
	if l.fileHandler != nil {
		_ = l.fileHandler.Handle(ctx, r.Clone())
	}
	_ = l.textHandler.Handle(ctx, r)
}

func (l *Logger) logf(level slog.Level, msg string, args ...interface{}) {
	if len(args) > 0 && strings.Contains(msg, "%") {
		l.log(level, fmt.Sprintf(msg, args...))
		return
	}
	l.log(level, msg, args...)
}

// FormatLog prefixes message with a module tag: FormatLog("HTTP", "ready") -> "[HTTP] ready".
// Messages that already start with "[" are returned unchanged.
func FormatLog(tag, message string) string {
	tag = strings.TrimSpace(tag)
	message = strings.TrimSpace(message)
	if tag == "" || strings.HasPrefix(message, "[") {
		return message
	}
	return fmt.Sprintf("[%s] %s", tag, message)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.logf(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.logf(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.logf(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.logf(slog.LevelError, msg, args...) }

// DebugTag 记录带分类标签的调试日志
func (l *Logger) DebugTag(tag, msg string, args ...interface{}) {
	l.logf(slog.LevelDebug, FormatLog(tag, msg), args...)
}

// InfoTag 记录带分类标签的信息日志
func (l *Logger) InfoTag(tag, msg string, args ...interface{}) {
	l.logf(slog.LevelInfo, FormatLog(tag, msg), args...)
}

// WarnTag 记录带分类标签的警告日志
func (l *Logger) WarnTag(tag, msg string, args ...interface{}) {
	l.logf(slog.LevelWarn, FormatLog(tag, msg), args...)
}

// ErrorTag 记录带分类标签的错误日志
func (l *Logger) ErrorTag(tag, msg string, args ...interface{}) {
	l.logf(slog.LevelError, FormatLog(tag, msg), args...)
}
