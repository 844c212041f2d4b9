package observability

import (
	"strings"

	"github.com/smallbiznis/warebill/internal/config"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// LoadConfig derives telemetry settings from the application config.
// An endpoint with an http(s) scheme selects the OTLP/HTTP exporters, anything else gRPC.
// Exporters take host:port, so the scheme is stripped.
func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "warebill"
	}
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	protocol := "grpc"
	for _, scheme := range []string{"http://", "https://"} {
		if strings.HasPrefix(endpoint, scheme) {
			protocol = "http"
			endpoint = strings.TrimPrefix(endpoint, scheme)
		}
	}
	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	return Config{
		ServiceName:   name,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      cfg.Telemetry.LogLevel,
		LogFormat:     cfg.Telemetry.LogFormat,
		OtelEnabled:   cfg.Telemetry.OtelEnabled,
		OTLPEndpoint:  endpoint,
		OTLPProtocol:  protocol,
		SamplingRatio: ratio,
	}
}

// Debug turns on verbose request logs and stack traces.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "development", "local", "test":
		return true
	}
	return false
}
