package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDurationParsesAndFallsBack(t *testing.T) {
	t.Setenv("SITEPRESS_TEST_DURATION", "45s")
	assert.Equal(t, 45*time.Second, GetDuration("SITEPRESS_TEST_DURATION", time.Second))

	t.Setenv("SITEPRESS_TEST_DURATION", "soon")
	assert.Equal(t, time.Second, GetDuration("SITEPRESS_TEST_DURATION", time.Second))
}

func TestGetListDropsBlanks(t *testing.T) {
	t.Setenv("SITEPRESS_TEST_LIST", "openai, ,webhook,")
	assert.Equal(t, []string{"openai", "webhook"}, GetList("SITEPRESS_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, GetList("SITEPRESS_TEST_LIST_UNSET", []string{"x"}))
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("SITEPRESS_DOTENV_A=from-file\nSITEPRESS_DOTENV_B=from-file\n"), 0o600))
	t.Setenv("SITEPRESS_DOTENV_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("SITEPRESS_DOTENV_B") })

	LoadDotEnv(file, filepath.Join(dir, "missing.env"))

	assert.Equal(t, "from-env", os.Getenv("SITEPRESS_DOTENV_A"))
	assert.Equal(t, "from-file", os.Getenv("SITEPRESS_DOTENV_B"))
}

func TestLoadAPIConfigDefaults(t *testing.T) {
	cfg := LoadAPIConfig()
	assert.Equal(t, 5, cfg.MaxSuffixAttempts)
	assert.Equal(t, 30*time.Second, cfg.StrategyTimeout)
	assert.Equal(t, 20*time.Second, cfg.ProviderTimeout)
}
