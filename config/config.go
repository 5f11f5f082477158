package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Strategies []StrategyConfig `yaml:"strategies"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Paper      PaperConfig      `yaml:"paper"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StrategyConfig describe una escalera sobre un par.
type StrategyConfig struct {
	Name    string       `yaml:"name"`
	Pair    string       `yaml:"pair"` // símbolo del exchange, p.ej. BTCUSDT
	Enabled *bool        `yaml:"enabled"`
	Ladder  LadderConfig `yaml:"ladder"`
}

// IsEnabled devuelve true salvo que enabled sea false explícitamente.
func (s StrategyConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LadderConfig es la parte numérica de la estrategia, tal cual viene del YAML.
type LadderConfig struct {
	BaseGap  float64   `yaml:"base_gap"`
	GapMax   float64   `yaml:"gap_max"`
	Ladders  int       `yaml:"ladders"`
	Weights  []float64 `yaml:"weights"`
	UnitSize float64   `yaml:"unit_size"`
	FeeRate  *float64  `yaml:"fee_rate"` // nil → default; 0 explícito se respeta
}

// BacktestConfig controla las simulaciones históricas.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Interval       string  `yaml:"interval"` // intervalo de velas: 1m, 1h, 1d...
	Start          string  `yaml:"start"`    // YYYY-MM-DD
	End            string  `yaml:"end"`      // YYYY-MM-DD, vacío = hoy
	DataDir        string  `yaml:"data_dir"`
	ReportDir      string  `yaml:"report_dir"`
	Workers        int     `yaml:"workers"`
	Recycle        bool    `yaml:"recycle"`
}

// PaperConfig controla el trading simulado contra precios reales.
type PaperConfig struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	QuoteAsset      string  `yaml:"quote_asset"`
	IntervalSeconds int     `yaml:"interval_seconds"`
	TickSize        string  `yaml:"tick_size"` // vacío → se consulta exchangeInfo
	StepSize        string  `yaml:"step_size"`
	MinNotional     string  `yaml:"min_notional"`
	MaxLosses       int     `yaml:"max_losses"`
	CooldownMinutes int     `yaml:"cooldown_minutes"`
	MaxDrawdown     float64 `yaml:"max_drawdown"` // pérdida realizada máxima en quote, valor positivo
}

// APIConfig contiene el base URL de la API pública del exchange.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

const (
	defaultGapMax         = 0.95
	defaultFeeRate        = 0.001
	defaultInitialCapital = 10000
	defaultInterval       = "1h"
	defaultPollSeconds    = 60
)

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodifica YAML ya leído y aplica overrides y defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval devuelve el intervalo de polling del trader.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Paper.IntervalSeconds) * time.Second
}

// BacktestRange parsea start/end del backtest. End vacío significa ahora.
func (c *Config) BacktestRange(now time.Time) (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, c.Backtest.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("config: backtest.start: %w", err)
	}
	end := now.UTC()
	if c.Backtest.End != "" {
		end, err = time.Parse(time.DateOnly, c.Backtest.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("config: backtest.end: %w", err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("config: backtest.end %s must be after start %s", c.Backtest.End, c.Backtest.Start)
	}
	return start, end, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GRIDBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	for i := range cfg.Strategies {
		l := &cfg.Strategies[i].Ladder
		if l.GapMax == 0 {
			l.GapMax = defaultGapMax
		}
		if l.FeeRate == nil {
			fee := defaultFeeRate
			l.FeeRate = &fee
		}
	}
	if cfg.Backtest.InitialCapital <= 0 {
		cfg.Backtest.InitialCapital = defaultInitialCapital
	}
	if cfg.Backtest.Interval == "" {
		cfg.Backtest.Interval = defaultInterval
	}
	if cfg.Backtest.DataDir == "" {
		cfg.Backtest.DataDir = "data"
	}
	if cfg.Backtest.ReportDir == "" {
		cfg.Backtest.ReportDir = "reports"
	}
	if cfg.Paper.InitialCapital <= 0 {
		cfg.Paper.InitialCapital = defaultInitialCapital
	}
	if cfg.Paper.QuoteAsset == "" {
		cfg.Paper.QuoteAsset = "USDT"
	}
	if cfg.Paper.IntervalSeconds <= 0 {
		cfg.Paper.IntervalSeconds = defaultPollSeconds
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.binance.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "gridbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza estructuras inválidas. Los rangos numéricos de la escalera
// los valida el dominio al registrar las estrategias.
func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategies[%d]: name is required", i)
		}
		if s.Pair == "" {
			return fmt.Errorf("strategy %q: pair is required", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("strategy %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
