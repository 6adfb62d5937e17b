package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/KrishmiH/supermarket-pos-system/internal/config"
)

// New builds the process logger. When LOG_FILE is set, a rotating JSON file
// sink is teed next to stdout.
func New(cfg config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.IsDevelopment() {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	if enc := strings.TrimSpace(cfg.LogEncoding); enc != "" {
		zapConfig.Encoding = enc
	}
	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	if cfg.LogFile == "" {
		return zapConfig.Build(zap.AddCaller())
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   false,
	}
	stdoutEncoder := zapcore.NewJSONEncoder(zapConfig.EncoderConfig)
	if zapConfig.Encoding == "console" {
		stdoutEncoder = zapcore.NewConsoleEncoder(zapConfig.EncoderConfig)
	}
	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zapConfig.Level,
		),
		zapcore.NewCore(
			stdoutEncoder,
			zapcore.AddSync(os.Stdout),
			zapConfig.Level,
		),
	)
	return zap.New(core, zap.AddCaller()), nil
}
