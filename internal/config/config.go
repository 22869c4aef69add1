package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Engine holds all configuration for the AI engine and the demo
// simulation binary.
type Engine struct {
	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Coordinator
	MaxAgents       int `yaml:"max_agents"`
	Workers         int `yaml:"workers"`
	TickRateHz      int `yaml:"tick_rate_hz"`
	AgentDecaySecs  int `yaml:"agent_decay_secs"`
	BodyHeightCells int `yaml:"body_height_cells"`

	// Pathfinder
	Pathfinder PathfinderConfig `yaml:"pathfinder"`

	// Navigation grid extents for the demo world
	Grid GridConfig `yaml:"grid"`

	// Debug stream
	Debug DebugConfig `yaml:"debug"`

	// Persistence
	Database DatabaseConfig `yaml:"database"`
}

// PathfinderConfig tunes the search engine.
type PathfinderConfig struct {
	Workers            int `yaml:"workers"` // 0 = half the coordinator workers
	CacheSize          int `yaml:"cache_size"`
	CacheTTLSecs       int `yaml:"cache_ttl_secs"`
	ResultTTLSecs      int `yaml:"result_ttl_secs"`
	FlowFieldThreshold int `yaml:"flow_field_threshold"`
	MaxSyncSearches    int `yaml:"max_sync_searches"`
}

// GridConfig sizes the navigation grid of the demo world.
type GridConfig struct {
	OriginX  float64 `yaml:"origin_x"`
	OriginY  float64 `yaml:"origin_y"`
	OriginZ  float64 `yaml:"origin_z"`
	CellSize float64 `yaml:"cell_size"`
	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	Depth    int     `yaml:"depth"`
}

// DebugConfig controls the websocket debug stream.
type DebugConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultEngine returns Engine config with sensible defaults.
func DefaultEngine() Engine {
	return Engine{
		LogLevel:        "info",
		MaxAgents:       256,
		Workers:         4,
		TickRateHz:      20,
		AgentDecaySecs:  10,
		BodyHeightCells: 2,
		Pathfinder: PathfinderConfig{
			CacheSize:          512,
			CacheTTLSecs:       10,
			ResultTTLSecs:      30,
			FlowFieldThreshold: 8,
			MaxSyncSearches:    4,
		},
		Grid: GridConfig{
			CellSize: 1,
			Width:    128,
			Height:   32,
			Depth:    128,
		},
		Debug: DebugConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1",
			Port:        8099,
		},
		Database: DatabaseConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "mobai",
			Password: "mobai",
			DBName:   "mobai",
			SSLMode:  "disable",
		},
	}
}

// LoadEngine loads engine config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadEngine(path string) (Engine, error) {
	cfg := DefaultEngine()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
