package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	log     = zap.NewNop()
	skipped = zap.NewNop()
)

// Init 初始化全局 logger；format 为 json 或 console
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl)
	Set(zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)))
	return nil
}

// Set 替换全局 logger（测试中可注入 observer）
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	log = l
	skipped = l.WithOptions(zap.AddCallerSkip(1))
	mu.Unlock()
}

// L 返回全局 logger
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func wrapped() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return skipped
}

func Debug(msg string, fields ...zap.Field) { wrapped().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { wrapped().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { wrapped().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { wrapped().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { wrapped().Fatal(msg, fields...) }

// Sync 刷新缓冲
func Sync() { _ = L().Sync() }
