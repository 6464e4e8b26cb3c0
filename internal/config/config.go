package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"orderflow/internal"
)

// Weights are the per-signal contributions to a line's confidence score.
type Weights struct {
	Manufacturer float64
	ItemNumber   float64
	Finish       float64
	Category     float64
	Electrified  float64
	Wiring       float64
	HardwareSet  float64
}

type ScoringConfig struct {
	Weights             Weights
	ReadyThreshold      float64
	MinItemNumberLength int
}

func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		Weights: Weights{
			Manufacturer: 0.30,
			ItemNumber:   0.20,
			Finish:       0.15,
			Category:     0.15,
			Electrified:  0.10,
			Wiring:       0.10,
			HardwareSet:  0.10,
		},
		ReadyThreshold:      0.6,
		MinItemNumberLength: 3,
	}
}

type Config struct {
	DBPath    string
	InboxDir  string
	OutputDir string

	RoutingPhase    internal.Phase
	RoutingCustomer string
	RoutingWorkers  int

	Scoring ScoringConfig

	ControlSurfaceTemplate string
	ControlSurfaceSheet    string
	ControlSurfaceStartRow int

	ListenerIntervalSec  int
	ListenerProcessBatch int
	ListenerAutoExport   bool
	MetricsAddr          string

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	phase, err := internal.ParsePhase(getEnv("ROUTING_PHASE", string(internal.Phase1)))
	if err != nil {
		return Config{}, fmt.Errorf("ROUTING_PHASE: %w", err)
	}

	def := DefaultScoring()
	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "orderflow.db")),
		InboxDir:  getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		RoutingPhase:    phase,
		RoutingCustomer: getEnv("ROUTING_CUSTOMER", ""),
		RoutingWorkers:  getEnvInt("ROUTING_WORKERS", 4),

		Scoring: ScoringConfig{
			Weights: Weights{
				Manufacturer: getEnvFloat("SCORE_WEIGHT_MANUFACTURER", def.Weights.Manufacturer),
				ItemNumber:   getEnvFloat("SCORE_WEIGHT_ITEM_NUMBER", def.Weights.ItemNumber),
				Finish:       getEnvFloat("SCORE_WEIGHT_FINISH", def.Weights.Finish),
				Category:     getEnvFloat("SCORE_WEIGHT_CATEGORY", def.Weights.Category),
				Electrified:  getEnvFloat("SCORE_WEIGHT_ELECTRIFIED", def.Weights.Electrified),
				Wiring:       getEnvFloat("SCORE_WEIGHT_WIRING", def.Weights.Wiring),
				HardwareSet:  getEnvFloat("SCORE_WEIGHT_HARDWARE_SET", def.Weights.HardwareSet),
			},
			ReadyThreshold:      getEnvFloat("SCORE_READY_THRESHOLD", def.ReadyThreshold),
			MinItemNumberLength: getEnvInt("SCORE_MIN_ITEM_NUMBER_LEN", def.MinItemNumberLength),
		},

		ControlSurfaceTemplate: getEnv("CONTROL_SURFACE_TEMPLATE", ""),
		ControlSurfaceSheet:    getEnv("CONTROL_SURFACE_SHEET", "Control Surface"),
		ControlSurfaceStartRow: getEnvInt("CONTROL_SURFACE_START_ROW", 2),

		ListenerIntervalSec:  getEnvInt("LISTENER_INTERVAL_SEC", 30),
		ListenerProcessBatch: getEnvInt("LISTENER_PROCESS_BATCH", 20),
		ListenerAutoExport:   getEnvBool("LISTENER_AUTO_EXPORT", true),
		MetricsAddr:          getEnv("METRICS_ADDR", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	if cfg.RoutingWorkers < 1 {
		cfg.RoutingWorkers = 1
	}
	if cfg.ControlSurfaceStartRow < 2 {
		cfg.ControlSurfaceStartRow = 2
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
