package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/spektr-org/pivot/engine"
)

// Config holds the process settings of the pivot server and CLI.
type Config struct {
	Addr          string   // PIVOT_ADDR, listen address
	DataFiles     []string // PIVOT_DATA_FILE, comma separated CSV/XLSX paths
	SchemaFile    string   // PIVOT_SCHEMA_FILE, JSON or YAML schema
	RulesFile     string   // PIVOT_RULES_FILE, YAML permission rules merged onto the defaults
	Table         string   // PIVOT_TABLE, table id used for permission lookups
	DateField     string   // PIVOT_DATE_FIELD, empty means the schema's date field
	GrandTotalKey string   // PIVOT_GRAND_TOTAL
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:          getEnvOrDefault("PIVOT_ADDR", ":8080"),
		DataFiles:     splitList(os.Getenv("PIVOT_DATA_FILE")),
		SchemaFile:    os.Getenv("PIVOT_SCHEMA_FILE"),
		RulesFile:     os.Getenv("PIVOT_RULES_FILE"),
		Table:         getEnvOrDefault("PIVOT_TABLE", "shop_sales"),
		DateField:     os.Getenv("PIVOT_DATE_FIELD"),
		GrandTotalKey: getEnvOrDefault("PIVOT_GRAND_TOTAL", engine.DefaultGrandTotalKey),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("PIVOT_ADDR must not be empty")
	}
	if c.SchemaFile != "" && len(c.DataFiles) == 0 {
		return fmt.Errorf("PIVOT_SCHEMA_FILE is set but PIVOT_DATA_FILE is empty")
	}
	return nil
}

// EngineOptions turns the engine-related settings into engine options.
// An unset date field adds no option.
func (c *Config) EngineOptions() []engine.Option {
	opts := []engine.Option{engine.WithGrandTotalKey(c.GrandTotalKey)}
	if c.DateField != "" {
		opts = append(opts, engine.WithDateField(c.DateField))
	}
	return opts
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
