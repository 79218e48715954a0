package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance   BinanceConfig   `yaml:"binance"`
	Trading   TradingConfig   `yaml:"trading"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Persist   PersistConfig   `yaml:"persist"`
	Status    StatusConfig    `yaml:"status"`
	Pacing    PacingConfig    `yaml:"pacing"`
	Storage   StorageConfig   `yaml:"storage"`
	Journal   JournalConfig   `yaml:"journal"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	UI        UIConfig        `yaml:"ui"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"`
	Testnet    bool          `yaml:"testnet"`
	Timeout    time.Duration `yaml:"timeout" default:"10s"`
	PageLimit  int           `yaml:"page_limit" default:"1000" validate:"min=1,max=1500"`
	MaxRetries int           `yaml:"max_retries" default:"3" validate:"min=0"`
}

// TradingConfig содержит набор символов и параметры выборки свечей
type TradingConfig struct {
	Symbols           []string `yaml:"symbols" validate:"min=1,dive,required"`
	Interval          string   `yaml:"interval" default:"15m" validate:"required"`
	Limit             int      `yaml:"limit" default:"200" validate:"min=1,max=1500,gtefield=MinCandles"`
	MinCandles        int      `yaml:"min_candles" default:"100" validate:"min=1"`
	Benchmark         string   `yaml:"benchmark" default:"BTC" validate:"required"`
	// BenchmarkInterval таймфрейм эталона для рыночного контекста, не зависит от interval
	BenchmarkInterval string   `yaml:"benchmark_interval" default:"15m" validate:"required"`
}

// StrategyConfig параметры индикаторов и классификатора
type StrategyConfig struct {
	Name             string        `yaml:"name" default:"EMA+RSI+MACD" validate:"required"`
	Profile          string        `yaml:"profile" default:"majority" validate:"oneof=majority atr-gate"`
	EMAFast          int           `yaml:"ema_fast" default:"20" validate:"min=1"`
	EMASlow          int           `yaml:"ema_slow" default:"50" validate:"min=1"`
	RSIPeriod        int           `yaml:"rsi_period" default:"14" validate:"min=2"`
	MACDFast         int           `yaml:"macd_fast" default:"12" validate:"min=1"`
	MACDSlow         int           `yaml:"macd_slow" default:"26" validate:"min=1,gtfield=MACDFast"`
	MACDSignal       int           `yaml:"macd_signal" default:"9" validate:"min=1"`
	ATRPeriod        int           `yaml:"atr_period" default:"14" validate:"min=1"`
	StopMultiplier   float64       `yaml:"stop_multiplier" default:"2.3" validate:"gt=0"`
	TargetMultiplier float64       `yaml:"target_multiplier" default:"2.0" validate:"gt=0"`
	SignalTimeOffset time.Duration `yaml:"signal_time_offset" default:"4h"`
}

// DispatchConfig настройки отправки уведомлений
type DispatchConfig struct {
	Enabled       bool           `yaml:"enabled" default:"true"`
	TelegramOnly  bool           `yaml:"telegram_only"`
	MinStrength   string         `yaml:"min_strength" default:"MEDIUM" validate:"oneof=WEAK MEDIUM STRONG"`
	MarketContext bool           `yaml:"market_context" default:"true"`
	Telegram      TelegramConfig `yaml:"telegram"`
	Kafka         KafkaConfig    `yaml:"kafka"`
}

// TelegramConfig параметры Telegram бота
type TelegramConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	BotToken string        `yaml:"bot_token"`
	ChatID   string        `yaml:"chat_id"`
	BaseURL  string        `yaml:"base_url" default:"https://api.telegram.org" validate:"url"`
	Timeout  time.Duration `yaml:"timeout" default:"10s"`
}

// KafkaConfig параметры публикации сигналов в Kafka
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `yaml:"topic" default:"crypto-signals"`
}

// DedupConfig окна подавления дублей
type DedupConfig struct {
	PersistWindow time.Duration `yaml:"persist_window" default:"30m"`
	StrongWindow  time.Duration `yaml:"strong_window" default:"90m"`
	MediumWindow  time.Duration `yaml:"medium_window" default:"120m"`
	WeakWindow    time.Duration `yaml:"weak_window" default:"180m"`
	RSIBand       float64       `yaml:"rsi_band" default:"5" validate:"gte=0"`
	RSILow        float64       `yaml:"rsi_low" default:"30"`
	RSIHigh       float64       `yaml:"rsi_high" default:"70" validate:"gtfield=RSILow"`
}

// PersistConfig политика сохранения
type PersistConfig struct {
	UnanimousOnly bool `yaml:"unanimous_only" default:"true"`
}

// StatusConfig параметры проверки исходов
type StatusConfig struct {
	Hours    int    `yaml:"hours" default:"12" validate:"min=0"`
	Range    int    `yaml:"range" default:"24" validate:"min=1"`
	Interval string `yaml:"interval" default:"15m"`
}

// PacingConfig задержки между вызовами биржи
type PacingConfig struct {
	Analysis time.Duration `yaml:"analysis"`
	Status   time.Duration `yaml:"status" default:"200ms"`
	Paging   time.Duration `yaml:"paging" default:"100ms"`
}

// StorageConfig настройки хранения сигналов
type StorageConfig struct {
	Type string `yaml:"type" default:"sqlite" validate:"oneof=sqlite memory"`
	Path string `yaml:"path" default:"bfsignals.db"`
}

// JournalConfig настройки журнала InfluxDB
type JournalConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url" default:"http://localhost:8086"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket" default:"signals"`
}

// SchedulerConfig настройки встроенного планировщика
type SchedulerConfig struct {
	AnalysisEvery time.Duration `yaml:"analysis_every" default:"15m"`
	StatusEvery   time.Duration `yaml:"status_every" default:"12h"`
	Lock          string        `yaml:"lock" default:"local" validate:"oneof=local redis"`
	LockTTL       time.Duration `yaml:"lock_ttl" default:"10m"`
	RedisAddr     string        `yaml:"redis_addr" default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// ServerConfig настройки HTTP API
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Addr    string `yaml:"addr" default:":8080"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms" default:"5000" validate:"min=100"`
	MaxRows     int `yaml:"max_rows" default:"20" validate:"min=1"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level    string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Console  bool   `yaml:"console" default:"true"`
	File     string `yaml:"file" default:"app.log"`
	JSONFile string `yaml:"json_file" default:"app.json.log"`
	Truncate bool   `yaml:"truncate" default:"true"`
}

// Load загружает конфигурацию из файла, накладывает переменные окружения и проверяет результат
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML поверх значений по умолчанию
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка установки значений по умолчанию: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default возвращает конфигурацию по умолчанию с указанными символами
func Default(symbols ...string) *Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	cfg.Trading.Symbols = symbols
	return &cfg
}

var validate = validator.New()

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("неверная конфигурация: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("неверная конфигурация: %w", err)
	}
	return nil
}

// applyEnv накладывает секреты и адреса из окружения
func applyEnv(cfg *Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Binance.APISecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Dispatch.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Dispatch.Telegram.ChatID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Scheduler.RedisAddr = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Journal.Token = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Trading.Symbols = SplitSymbols(v)
	}
}

// SplitSymbols разбирает список символов через запятую
func SplitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
