package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ehr/ertriage/internal/domain/triage"
)

// Discharge sink kinds.
const (
	SinkFile     = "file"
	SinkPostgres = "postgres"
	SinkMemory   = "memory"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	LogLevel          string   `mapstructure:"LOG_LEVEL"`
	DoctorCapacity    int      `mapstructure:"DOCTOR_CAPACITY"`
	RoomCapacity      int      `mapstructure:"ROOM_CAPACITY"`
	EquipmentCapacity int      `mapstructure:"EQUIPMENT_CAPACITY"`
	DischargeSink     string   `mapstructure:"DISCHARGE_SINK"`
	DischargeLogPath  string   `mapstructure:"DISCHARGE_LOG_PATH"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	DBSchema          string   `mapstructure:"DB_SCHEMA"`
	MigrationsDir     string   `mapstructure:"MIGRATIONS_DIR"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int      `mapstructure:"RATE_LIMIT_BURST"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DOCTOR_CAPACITY", "ROOM_CAPACITY", "EQUIPMENT_CAPACITY",
	"DISCHARGE_SINK", "DISCHARGE_LOG_PATH",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA", "MIGRATIONS_DIR",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DOCTOR_CAPACITY", triage.DefaultCapacities.Doctors)
	v.SetDefault("ROOM_CAPACITY", triage.DefaultCapacities.Rooms)
	v.SetDefault("EQUIPMENT_CAPACITY", triage.DefaultCapacities.Equipment)
	v.SetDefault("DISCHARGE_SINK", SinkFile)
	v.SetDefault("DISCHARGE_LOG_PATH", "patients_released.txt")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Unmarshal only sees env vars that were bound explicitly.
	for _, k := range envKeys {
		v.BindEnv(k)
	}

	// .env is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.DischargeSink = strings.ToLower(strings.TrimSpace(cfg.DischargeSink))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Capacities converts the configured pool sizes.
func (c *Config) Capacities() triage.Capacities {
	return triage.Capacities{
		Doctors:   c.DoctorCapacity,
		Rooms:     c.RoomCapacity,
		Equipment: c.EquipmentCapacity,
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.DoctorCapacity <= 0 || c.RoomCapacity <= 0 || c.EquipmentCapacity <= 0 {
		return fmt.Errorf("resource capacities must be positive, got doctors=%d rooms=%d equipment=%d",
			c.DoctorCapacity, c.RoomCapacity, c.EquipmentCapacity)
	}

	switch c.DischargeSink {
	case SinkFile:
		if c.DischargeLogPath == "" {
			return fmt.Errorf("DISCHARGE_LOG_PATH is required when DISCHARGE_SINK is %q", SinkFile)
		}
	case SinkPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DISCHARGE_SINK is %q", SinkPostgres)
		}
	case SinkMemory:
		if !c.IsDev() {
			return fmt.Errorf("DISCHARGE_SINK %q keeps records in memory only and is limited to ENV=development", SinkMemory)
		}
	default:
		return fmt.Errorf("DISCHARGE_SINK must be %q, %q or %q, got %q", SinkFile, SinkPostgres, SinkMemory, c.DischargeSink)
	}

	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
