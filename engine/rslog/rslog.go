package rslog

import (
	"encoding/json"
	"io"
	"net/url"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// DebugLevel level
	DebugLevel Level = Level(zap.DebugLevel)
	// InfoLevel level
	InfoLevel Level = Level(zap.InfoLevel)
	// WarnLevel level
	WarnLevel Level = Level(zap.WarnLevel)
	// ErrorLevel level
	ErrorLevel Level = Level(zap.ErrorLevel)
	// PanicLevel level
	PanicLevel Level = Level(zap.PanicLevel)
	// FatalLevel level
	FatalLevel Level = Level(zap.FatalLevel)

	// Debugf logs formatted debug message
	Debugf logFormatFunc
	// Infof logs formatted info message
	Infof logFormatFunc
	// Warnf logs formatted warn message
	Warnf logFormatFunc
	// Errorf logs formatted error message
	Errorf logFormatFunc
	Panicf logFormatFunc
	Fatalf logFormatFunc
	Fatal  func(args ...interface{})
	Panic  func(args ...interface{})
)

type logFormatFunc func(format string, args ...interface{})

// Level is type of log levels
type Level zapcore.Level

var (
	cfg    zap.Config
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	source string

	registerSinkOnce sync.Once
)

func init() {
	var err error
	cfgJson := []byte(`{
		"level": "debug",
		"outputPaths": ["stderr"],
		"errorOutputPaths": ["stderr"],
		"encoding": "console",
		"encoderConfig": {
			"messageKey": "message",
			"levelKey": "level",
			"timeKey": "time",
			"timeEncoder": "iso8601",
			"levelEncoder": "lowercase"
		}
	}`)

	if err = json.Unmarshal(cfgJson, &cfg); err != nil {
		panic(err)
	}

	rebuild()
}

func rebuild() {
	newLogger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	logger = newLogger
	if source != "" {
		logger = logger.With(zap.String("source", source))
	}
	setSugar(logger.Sugar())
}

// SetSource sets the component name (root/shard/client) of rslog module
func SetSource(comp string) {
	source = comp
	rebuild()
}

func setSugar(sugar_ *zap.SugaredLogger) {
	sugar = sugar_
	Debugf = sugar.Debugf
	Infof = sugar.Infof
	Warnf = sugar.Warnf
	Errorf = sugar.Errorf
	Panicf = sugar.Panicf
	Panic = sugar.Panic
	Fatalf = sugar.Fatalf
	Fatal = sugar.Fatal
}

// SetLevel sets the log level
func SetLevel(lv Level) {
	cfg.Level.SetLevel(zapcore.Level(lv))
}

// GetLevel returns the current log level
func GetLevel() Level {
	return Level(cfg.Level.Level())
}

// TraceError prints the stack and error
func TraceError(format string, args ...interface{}) {
	Errorf(format+"\n%s", append(args, debug.Stack())...)
}

type levelWriter Level

func (w levelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if ce := logger.Check(zapcore.Level(w), msg); ce != nil {
		ce.Write()
	}
	return len(p), nil
}

// Writer returns a writer logging every write at level lv
func Writer(lv Level) io.Writer {
	return levelWriter(lv)
}

// SetOutput sets the output paths of logs.
//
// "stderr" and "stdout" are written as is, any other path is treated as a log file rotated by lumberjack.
func SetOutput(outputs []string) {
	registerSinkOnce.Do(func() {
		if err := zap.RegisterSink("lumberjack", newLumberjackSink); err != nil {
			panic(err)
		}
	})

	paths := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out == "stderr" || out == "stdout" {
			paths = append(paths, out)
		} else {
			paths = append(paths, "lumberjack:"+out)
		}
	}
	cfg.OutputPaths = paths
	rebuild()
}

type lumberjackSink struct {
	*lumberjack.Logger
}

func (s lumberjackSink) Sync() error {
	return nil
}

func newLumberjackSink(u *url.URL) (zap.Sink, error) {
	filename := u.Opaque
	if filename == "" {
		filename = u.Path
	}
	if err := os.MkdirAll(dirOf(filename), 0755); err != nil {
		return nil, err
	}
	return lumberjackSink{&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100, // megabytes
		MaxBackups: 100,
		MaxAge:     30, //days
		Compress:   true,
	}}, nil
}

func dirOf(filename string) string {
	idx := strings.LastIndexAny(filename, `/\`)
	if idx <= 0 {
		return "."
	}
	return filename[:idx]
}

// ParseLevel converts string to Levels
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "panic":
		return PanicLevel
	case "fatal":
		return FatalLevel
	}
	Errorf("ParseLevel: unknown level: %s", s)
	return DebugLevel
}
