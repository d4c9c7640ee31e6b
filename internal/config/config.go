// Package config loads the orchestrator's environment-driven configuration.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
)

// DefaultMaxRetryAttempts is the default value of MAX_RETRY_ATTEMPTS (spec §3 invariant #1).
const DefaultMaxRetryAttempts = 5

// Config holds the recognized environment inputs (spec §6 "Configuration").
type Config struct {
	// AnthropicAPIKey, if empty, puts the system in degraded mode: every
	// LLM-enhanced behavior falls back to its rule-based counterpart.
	AnthropicAPIKey string

	// LogLevel is parsed with logging.ParseLevel.
	LogLevel string

	// MaxRetryAttempts bounds Session.correction_attempt (invariant #1).
	MaxRetryAttempts int

	// UploadDir is where uploaded source artifacts are written.
	UploadDir string

	// OutputDir is where NWB files and reports are written.
	OutputDir string

	// Port is the HTTP listen port.
	Port int

	// ConversionCommand is the argv of the external NWB conversion library
	// callable (spec §1 external collaborator), e.g. "neuroconv-cli".
	ConversionCommand []string

	// ValidatorCommand is the argv of the external NWB validator callable.
	ValidatorCommand []string

	// PDFRendererCommand is the argv of the external report-to-PDF renderer.
	// May be empty, in which case PDF requests degrade to JSON.
	PDFRendererCommand []string
}

// Load reads configuration from the process environment, loading a local
// .env file first if one is present (the same convention the teacher and
// vinayprograms-agent use for local development).
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logging.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := &Config{
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		MaxRetryAttempts: getEnvIntOrDefault("MAX_RETRY_ATTEMPTS", DefaultMaxRetryAttempts),
		UploadDir:        getEnvOrDefault("NWBCONVERTD_UPLOAD_DIR", filepath.Join(os.TempDir(), "nwbconvertd", "uploads")),
		OutputDir:        getEnvOrDefault("NWBCONVERTD_OUTPUT_DIR", filepath.Join(os.TempDir(), "nwbconvertd", "output")),
		Port:             getEnvIntOrDefault("NWBCONVERTD_PORT", 8080),

		ConversionCommand:  getEnvCommand("NWBCONVERTD_CONVERSION_COMMAND", []string{"neuroconv-cli"}),
		ValidatorCommand:   getEnvCommand("NWBCONVERTD_VALIDATOR_COMMAND", []string{"nwbinspector-cli"}),
		PDFRendererCommand: getEnvCommand("NWBCONVERTD_PDF_RENDERER_COMMAND", nil),
	}

	return cfg
}

func getEnvCommand(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.Fields(value)
}

// Degraded reports whether the system must operate without the language model.
func (c *Config) Degraded() bool {
	return c.AnthropicAPIKey == ""
}

// EnsureDirs creates the upload and output directories if they don't exist.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadDir, c.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
