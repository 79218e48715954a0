package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Глобальный экземпляр логгера
var (
	mu           sync.RWMutex
	globalLogger *zap.Logger
)

// Options параметры логгера
type Options struct {
	Level    string // debug, info, warn, error
	Console  bool   // вывод в stdout
	File     string // читаемый лог, пусто - отключен
	JSONFile string // JSON лог, пусто - отключен
	Truncate bool   // очищать файлы при запуске
}

// Init инициализирует глобальный логгер
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// SetLogger подменяет глобальный логгер (используется в тестах)
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	globalLogger = l
}

// GetLogger возвращает глобальный экземпляр логгера
func GetLogger() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = New(Options{Level: "info", Console: true})
	}
	return globalLogger
}

// With возвращает дочерний логгер с полями
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().WithOptions(zap.AddCallerSkip(-1)).With(fields...)
}

// Sync сбрасывает буферы
func Sync() {
	_ = GetLogger().Sync()
}

// Вспомогательные функции для удобства использования
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// New создает логгер: Tee из консоли, читаемого файла и JSON файла
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("неверный уровень логирования %q: %w", opts.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02.01.2006 - 15:04:05.000000000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	jsonConfig := encoderConfig
	jsonConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	if opts.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level))
	}
	if opts.File != "" {
		f, err := openLogFile(opts.File, opts.Truncate)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(f), level))
	}
	if opts.JSONFile != "" {
		f, err := openLogFile(opts.JSONFile, opts.Truncate)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonConfig), zapcore.AddSync(f), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)), nil
}

func openLogFile(path string, truncate bool) (*os.File, error) {
	flags := os.O_APPEND | os.O_CREATE | os.O_WRONLY
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла лога %s: %w", path, err)
	}
	return f, nil
}
