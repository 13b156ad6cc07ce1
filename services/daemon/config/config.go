package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the daemon.
type Config struct {
	LogLevel       string
	Workspace      string
	Model          string
	BackendURL     string
	Workers        int
	ScanInterval   time.Duration
	NPredict       int
	Temperature    float64
	BackendTimeout time.Duration
	MetricsAddr    string
	OTelEndpoint   string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		Workspace:      v.GetString("workspace"),
		Model:          v.GetString("model"),
		BackendURL:     v.GetString("backend_url"),
		Workers:        v.GetInt("workers"),
		ScanInterval:   v.GetDuration("scan_interval"),
		NPredict:       v.GetInt("n_predict"),
		Temperature:    v.GetFloat64("temperature"),
		BackendTimeout: v.GetDuration("backend_timeout"),
		MetricsAddr:    v.GetString("metrics_addr"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
	}
}
