// pkg/logging/logging.go - structured, timestamped logging for WinForge build sessions.
//
// Each build session logs to its own timestamped directory so individual ISO
// builds can be inspected (and old ones cleaned up) independently. Output goes
// to the console and to a per-session log file. Messages carry structured
// key-value pairs.

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/windowsadmins/winforge/pkg/config"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// LoggerConfig holds configuration for the session logger.
type LoggerConfig struct {
	BaseDir       string // Base logging directory
	SessionID     string // Unique session identifier
	Component     string // Component/binary name
	MaxSessions   int    // Keep at most this many session directories
	EnableConsole bool   // Mirror log lines to stdout
}

// Logger encapsulates session logging with a timestamped directory per run.
type Logger struct {
	mu           sync.Mutex
	logLevel     LogLevel
	logFile      *os.File
	config       LoggerConfig
	sessionStart time.Time
	logDir       string
}

// singleton instance and sync.Once for thread-safe initialization
var (
	instance *Logger
	once     sync.Once
)

// Init initializes the singleton Logger based on the provided configuration.
// It must be called before any logging functions are used.
func Init(cfg *config.Configuration) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(cfg)
	})
	return initErr
}

// InitWithConfig initializes the logger with an explicit LoggerConfig.
func InitWithConfig(logCfg LoggerConfig) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLoggerWithConfig(logCfg)
	})
	return initErr
}

// generateSessionID creates a unique session identifier.
func generateSessionID() string {
	return fmt.Sprintf("winforge-%s-%s",
		time.Now().Format("2006-01-02-150405"), uuid.NewString()[:8])
}

func newLogger(cfg *config.Configuration) (*Logger, error) {
	logCfg := LoggerConfig{
		BaseDir:       cfg.LogPath,
		SessionID:     generateSessionID(),
		Component:     "winforge",
		MaxSessions:   20,
		EnableConsole: true,
	}

	l, err := newLoggerWithConfig(logCfg)
	if err != nil {
		return nil, err
	}
	l.logLevel = parseLevel(cfg.LogLevel)
	if cfg.Debug {
		l.logLevel = LevelDebug
	}
	return l, nil
}

func newLoggerWithConfig(cfg LoggerConfig) (*Logger, error) {
	sessionStart := time.Now()

	if cfg.SessionID == "" {
		cfg.SessionID = generateSessionID()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 20
	}

	// Format: YYYY-MM-DD-HHMMss
	logDir := filepath.Join(cfg.BaseDir, sessionStart.Format("2006-01-02-150405"))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session log directory %s: %w", logDir, err)
	}

	logFile, err := os.OpenFile(filepath.Join(logDir, cfg.Component+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log file: %w", err)
	}

	l := &Logger{
		logLevel:     LevelInfo,
		logFile:      logFile,
		config:       cfg,
		sessionStart: sessionStart,
		logDir:       logDir,
	}

	// Retention runs in the background so startup never waits on cleanup.
	go l.cleanupOldSessions()

	return l, nil
}

func parseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// cleanupOldSessions removes session directories beyond the retention count.
func (l *Logger) cleanupOldSessions() {
	entries, err := os.ReadDir(l.config.BaseDir)
	if err != nil {
		return
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != filepath.Base(l.logDir) {
			sessions = append(sessions, entry.Name())
		}
	}

	if len(sessions) < l.config.MaxSessions {
		return
	}

	// Directory names are timestamps, so a lexical sort is chronological.
	sort.Strings(sessions)
	for _, name := range sessions[:len(sessions)-l.config.MaxSessions+1] {
		_ = os.RemoveAll(filepath.Join(l.config.BaseDir, name))
	}
}

// CloseLogger flushes and closes the singleton logger's files.
func CloseLogger() {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	if instance.logFile != nil {
		_ = instance.logFile.Sync()
		_ = instance.logFile.Close()
		instance.logFile = nil
	}
}

// GetCurrentLogDir returns the timestamped directory for this session.
func GetCurrentLogDir() string {
	if instance == nil {
		return ""
	}
	return instance.logDir
}

// GetSessionID returns the identifier for this session.
func GetSessionID() string {
	if instance == nil {
		return ""
	}
	return instance.config.SessionID
}

// logMessage writes a single formatted log line to the configured outputs.
func (l *Logger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	if level > l.logLevel {
		return
	}

	var pairs []string
	for i := 0; i+1 < len(keyValues); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%v=%v", keyValues[i], keyValues[i+1]))
	}
	if len(keyValues)%2 != 0 {
		pairs = append(pairs, fmt.Sprintf("%v=?", keyValues[len(keyValues)-1]))
	}

	line := fmt.Sprintf("%s [%s] %s", time.Now().Format("2006-01-02 15:04:05"),
		level.String(), message)
	if len(pairs) > 0 {
		line += " " + strings.Join(pairs, " ")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.EnableConsole {
		fmt.Println(line)
	}
	if l.logFile != nil {
		fmt.Fprintln(l.logFile, line)
	}
}

// Info logs an informational message with structured key-value pairs.
func Info(message string, keyValues ...interface{}) {
	if instance != nil {
		instance.logMessage(LevelInfo, message, keyValues...)
	}
}

// Debug logs a debug message with structured key-value pairs.
func Debug(message string, keyValues ...interface{}) {
	if instance != nil {
		instance.logMessage(LevelDebug, message, keyValues...)
	}
}

// Warn logs a warning message with structured key-value pairs.
func Warn(message string, keyValues ...interface{}) {
	if instance != nil {
		instance.logMessage(LevelWarn, message, keyValues...)
	}
}

// Error logs an error message with structured key-value pairs.
func Error(message string, keyValues ...interface{}) {
	if instance != nil {
		instance.logMessage(LevelError, message, keyValues...)
	}
}
