package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinworks/skein/internal/config"
	"github.com/skeinworks/skein/internal/logging"
)

func TestDoctorCommand_HealthyBackends(t *testing.T) {
	cfg := writeTestConfig(t, literalConfig)

	cmd := NewDoctorCommand(cfg)
	output := captureOutput(t, cmd, nil)

	assert.Contains(t, output, "static")
	assert.Contains(t, output, "✓ healthy")
	assert.Contains(t, output, "Summary: 1/1 backends healthy")
}

func TestDoctorCommand_ResolvesConnection(t *testing.T) {
	cfg := writeTestConfig(t, literalConfig)

	cmd := NewDoctorCommand(cfg)
	output := captureOutput(t, cmd, []string{"--conn", "pg_default"})

	assert.Contains(t, output, "Summary: 1/1 backends healthy")
	assert.Contains(t, output, "Search chain for pg_default: static")
	// The secret value itself must never appear in doctor output.
	assert.NotContains(t, output, "tiger")
}

func TestDoctorCommand_MissingConfig(t *testing.T) {
	cfg := &config.Config{
		Path:   "does-not-exist.yaml",
		Logger: logging.New(false, true),
	}

	cmd := NewDoctorCommand(cfg)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestDoctorCommand_UnresolvableConnection(t *testing.T) {
	cfg := writeTestConfig(t, literalConfig)

	cmd := NewDoctorCommand(cfg)
	cmd.SetArgs([]string{"--conn", "missing"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection check failed")
}
