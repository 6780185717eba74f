package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const FileName = "linkmonitor.log"

type Options struct {
	Dir    string
	Level  string // debug, info, warn, error
	Stderr bool   // also write to stderr
}

// New builds a JSON logger writing through a rotating file in o.Dir.
func New(o Options) (*zap.Logger, error) {
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return nil, err
	}
	level := zap.InfoLevel
	if o.Level != "" {
		if err := level.UnmarshalText([]byte(o.Level)); err != nil {
			return nil, err
		}
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(o.Dir, FileName),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(cfg)

	core := zapcore.NewCore(enc, w, level)
	if o.Stderr {
		core = zapcore.NewTee(core, zapcore.NewCore(enc.Clone(), zapcore.Lock(os.Stderr), level))
	}
	return zap.New(core, zap.AddCaller()), nil
}

// NewLogger is New with defaults for everything but the directory.
func NewLogger(logDir string) (*zap.Logger, error) {
	return New(Options{Dir: logDir})
}
