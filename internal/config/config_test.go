package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, 2, s.FanOut)
	assert.Equal(t, "http://127.0.0.1:11434", s.ModelEndpoint)
	assert.Equal(t, 120, s.RunTimeoutSeconds)
	assert.False(t, s.AutonomousAccess)
	assert.False(t, s.InternetAccess)
}

func TestNormalize_FillsZeroValues(t *testing.T) {
	s := Settings{}
	normalize(&s)
	assert.Equal(t, 2, s.FanOut)
	assert.NotEmpty(t, s.ModelEndpoint)
	assert.NotEmpty(t, s.OutputDir)
	assert.Equal(t, 120, s.RunTimeoutSeconds)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CODEFORGE_FAN_OUT", "5")
	t.Setenv("CODEFORGE_DEBUG", "true")
	t.Setenv("CODEFORGE_MODEL_ENDPOINT", "http://127.0.0.1:9999")

	s := Default()
	applyEnvOverrides(&s)

	assert.Equal(t, 5, s.FanOut)
	assert.True(t, s.DebugMode)
	assert.Equal(t, "http://127.0.0.1:9999", s.ModelEndpoint)
}

func TestApplyEnvOverrides_BadFanOutIgnored(t *testing.T) {
	t.Setenv("CODEFORGE_FAN_OUT", "zero")
	s := Default()
	applyEnvOverrides(&s)
	assert.Equal(t, 2, s.FanOut)
}
