package log

import (
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	TraceLog = iota
	DebugLog
	InfoLog
	WarnLog
	ErrorLog
)

var Stdout io.Writer = os.Stdout

var current atomic.Pointer[zap.SugaredLogger]

func init() {
	InitLog(InfoLog, Stdout)
}

// InitLog replaces the package logger. Levels below InfoLog all map to zap's debug level.
func InitLog(level int, w io.Writer) {
	if w == nil {
		w = Stdout
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), zapLevel(level))
	current.Store(zap.New(core).Sugar())
}

func zapLevel(level int) zapcore.Level {
	switch {
	case level <= DebugLog:
		return zapcore.DebugLevel
	case level == InfoLog:
		return zapcore.InfoLevel
	case level == WarnLog:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func Sync() {
	_ = current.Load().Sync()
}

func Tracef(format string, a ...interface{}) {
	current.Load().Debugf("[trace] "+format, a...)
}

func Debugf(format string, a ...interface{}) {
	current.Load().Debugf(format, a...)
}

func Infof(format string, a ...interface{}) {
	current.Load().Infof(format, a...)
}

func Warnf(format string, a ...interface{}) {
	current.Load().Warnf(format, a...)
}

func Errorf(format string, a ...interface{}) {
	current.Load().Errorf(format, a...)
}

// Fatalf logs at error level and exits the process.
func Fatalf(format string, a ...interface{}) {
	current.Load().Errorf(format, a...)
	Sync()
	os.Exit(1)
}
