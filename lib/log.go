package lib

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogDirectory = "logs"
	LogFileName  = "log"
)

/* This file implements leveled, colored logging to stdout and an auto-rotating log file */

func init() {
	color.NoColor = false
}

// LoggerI defines the interface for the various logging levels and their formatted variants
type LoggerI interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// log levels follow the slog numeric convention
const (
	DebugLevel int32 = -4
	InfoLevel  int32 = 0
	WarnLevel  int32 = 4
	ErrorLevel int32 = 8
)

var _ LoggerI = &Logger{}

// tag pairs the level label with its color function
type tag struct {
	label string
	paint func(format string, a ...interface{}) string
}

var tags = map[int32]tag{
	DebugLevel: {"DEBUG: ", color.BlueString},
	InfoLevel:  {"INFO: ", color.GreenString},
	WarnLevel:  {"WARN: ", color.YellowString},
	ErrorLevel: {"ERROR: ", color.RedString},
}

// LoggerConfig holds the minimum level that is emitted and the destination writer
type LoggerConfig struct {
	Level int32 `json:"level"`
	Out   io.Writer
}

// Logger is the concrete implementation of LoggerI
type Logger struct {
	config LoggerConfig
}

// Debug() logs a message at the Debug level
func (l *Logger) Debug(msg string) { l.log(DebugLevel, msg) }

// Info() logs a message at the Info level
func (l *Logger) Info(msg string) { l.log(InfoLevel, msg) }

// Warn() logs a message at the Warn level
func (l *Logger) Warn(msg string) { l.log(WarnLevel, msg) }

// Error() logs a message at the Error level
func (l *Logger) Error(msg string) { l.log(ErrorLevel, msg) }

// Fatal() logs a message at the Error level and terminates the program
func (l *Logger) Fatal(msg string) {
	l.log(ErrorLevel, msg)
	os.Exit(1)
}

// Debugf() logs a formatted message at the Debug level
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(format, args...))
}

// Infof() logs a formatted message at the Info level
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(format, args...))
}

// Warnf() logs a formatted message at the Warn level
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(format, args...))
}

// Errorf() logs a formatted message at the Error level
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...))
}

// Fatalf() logs a formatted message at the Error level and terminates the program
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(format, args...))
	os.Exit(1)
}

// log() drops messages below the configured level and writes the rest with a timestamp and a colored level tag
func (l *Logger) log(level int32, msg string) {
	if l.config.Level > level {
		return
	}
	t := tags[level]
	stamp := color.HiBlackString(time.Now().Format(time.StampMilli))
	line := fmt.Sprintf("%s %s\n", stamp, paintLines(t.paint, t.label+msg))
	if _, err := l.config.Out.Write([]byte(line)); err != nil {
		fmt.Fprintf(os.Stderr, "log write failed: %s\n", err.Error())
	}
}

// NewLogger() creates a new Logger; when no writer is configured it tees stdout with
// a rotating file under <dataDir>/logs
func NewLogger(config LoggerConfig, dataDirPath ...string) LoggerI {
	if config.Out == nil {
		dir := DefaultDataDirPath()
		if len(dataDirPath) != 0 && dataDirPath[0] != "" {
			dir = dataDirPath[0]
		}
		logPath := filepath.Join(dir, LogDirectory, LogFileName)
		if _, err := os.Stat(logPath); errors.Is(err, os.ErrNotExist) {
			if err = os.MkdirAll(filepath.Join(dir, LogDirectory), os.ModePerm); err != nil {
				panic(err)
			}
		}
		logFile := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    1, // megabytes
			MaxBackups: 1000,
			MaxAge:     14, // days
			Compress:   true,
		}
		config.Out = io.MultiWriter(os.Stdout, logFile)
	}
	return &Logger{config: config}
}

// NewDefaultLogger() creates a Logger at the Debug level writing to stdout
func NewDefaultLogger() LoggerI {
	return NewLogger(LoggerConfig{Level: DebugLevel, Out: os.Stdout})
}

// NewNullLogger() creates a Logger that discards all output
func NewNullLogger() LoggerI {
	return NewLogger(LoggerConfig{Level: DebugLevel, Out: io.Discard})
}

// paintLines() applies the color line by line so multi-line messages stay colored
func paintLines(paint func(format string, a ...interface{}) string, msg string) string {
	parts := strings.Split(msg, "\n")
	for i, part := range parts {
		parts[i] = paint(part)
	}
	return strings.Join(parts, "\n")
}
