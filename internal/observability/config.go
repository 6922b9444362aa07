package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/memberbill/internal/config"
)

// Config is the logging and telemetry setup of one memberbill process.
// MEMBERBILL_* variables win over the generic OTEL_* and LOG_* ones.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel    string
	LogFormat   string
	LogSampling bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "memberbill"
	}
	environment := strings.ToLower(envFirst(cfg.Environment, "MEMBERBILL_ENV"))
	production := !isDevEnv(environment)

	protocol := envFirst("grpc", "MEMBERBILL_OTLP_PROTOCOL", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_EXPORTER_OTLP_PROTOCOL")

	return Config{
		ServiceName:          serviceName,
		Environment:          environment,
		Version:              envFirst(cfg.AppVersion, "MEMBERBILL_VERSION"),
		LogLevel:             strings.ToLower(envFirst("info", "MEMBERBILL_LOG_LEVEL", "LOG_LEVEL")),
		LogFormat:            strings.ToLower(envFirst("json", "MEMBERBILL_LOG_FORMAT", "LOG_FORMAT")),
		LogSampling:          envBool(production, "MEMBERBILL_LOG_SAMPLING"),
		OtelEnabled:          envBool(production, "MEMBERBILL_OTEL_ENABLED", "OTEL_ENABLED"),
		OtelExporterEndpoint: envFirst(cfg.OTLPEndpoint, "MEMBERBILL_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterProtocol: strings.ToLower(protocol),
		// a payment is rare next to a page view; keep every trace unless told otherwise
		OtelSamplingRatio: envFloat(1.0, "MEMBERBILL_OTEL_SAMPLING_RATIO", "OTEL_SAMPLING_RATIO"),
	}
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// envFirst returns the first non-empty variable among keys, or def.
func envFirst(def string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(def)
}

func envBool(def bool, keys ...string) bool {
	switch strings.ToLower(envFirst("", keys...)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envFloat(def float64, keys ...string) float64 {
	value := envFirst("", keys...)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}
