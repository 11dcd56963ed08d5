package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config agrupa toda la configuración del servicio, cargada desde env vars.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"pet-custody-escrow"`
	Port    string `env:"PORT" envDefault:"8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Si DB_DSN está vacío, se usan repos in-memory (modo dev).
	DBDSN string `env:"DB_DSN"`

	// LEDGER_MODE=horizon requiere HORIZON_URL. memory = ledger simulado.
	LedgerMode string `env:"LEDGER_MODE" envDefault:"memory"`
	HorizonURL string `env:"HORIZON_URL"`

	// Cuenta pool del escrow en el ledger (destino de holds).
	EscrowAccount string `env:"ESCROW_ACCOUNT"`

	// Secret HMAC para el verifier JWT. Vacío = modo dev (X-Debug-User-ID).
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"pet-custody-escrow"`

	// Presupuesto de reintentos contra el ledger (fallas transitorias).
	LedgerRetryMax     int           `env:"LEDGER_RETRY_MAX" envDefault:"5"`
	LedgerRetryBase    time.Duration `env:"LEDGER_RETRY_BASE" envDefault:"500ms"`
	LedgerRetryCeiling time.Duration `env:"LEDGER_RETRY_CEILING" envDefault:"30s"`

	// Intervalo del reconciliador de escrows pendientes de confirmación.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5s"`
}

// Load parsea la configuración desde el entorno.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.LedgerMode == "horizon" && cfg.HorizonURL == "" {
		return Config{}, fmt.Errorf("LEDGER_MODE=horizon requires HORIZON_URL")
	}

	return cfg, nil
}
