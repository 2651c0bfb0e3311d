package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ensureFiles(t *testing.T, rootDir string, files ...string) {
	for _, f := range files {
		p := rootify(f, rootDir)
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestEnsureRoot(t *testing.T) {
	require := require.New(t)

	// setup temp dir for test
	tmpDir := t.TempDir()

	// create root dir
	EnsureRoot(tmpDir)

	require.NoError(WriteConfigFile(tmpDir, DefaultConfig()))

	// make sure config is set properly
	data, err := os.ReadFile(filepath.Join(tmpDir, defaultConfigFilePath))
	require.NoError(err)

	checkConfig(t, string(data))

	ensureFiles(t, tmpDir, "data")
}

func TestEnsureTestRoot(t *testing.T) {
	require := require.New(t)

	testName := "ensureTestRoot"

	// create root dir
	cfg, err := ResetTestRoot(t.TempDir(), testName)
	require.NoError(err)
	rootDir := cfg.RootDir

	// make sure config is set properly
	data, err := os.ReadFile(filepath.Join(rootDir, defaultConfigFilePath))
	require.NoError(err)

	checkConfig(t, string(data))

	ensureFiles(t, rootDir, "data", "config")
	assert.Equal(t, filepath.Join(rootDir, "config", "key.json"), cfg.KeyFile())
	assert.Equal(t, testName, cfg.Instrumentation.Namespace)
}

func checkConfig(t *testing.T, configFile string) {
	t.Helper()

	var raw map[string]interface{}
	_, err := toml.Decode(configFile, &raw)
	require.NoError(t, err)

	// list of words we expect in the config
	var elems = []string{
		"moniker",
		"log_level",
		"key_file",
		"initial_balance",
		"rate_per_char",
		"challenge_poll_interval",
		"serve_interval",
		"auto_pay",
		"escrow_url",
		"listen_addr",
		"remote_addr",
		"cors_allowed_origins",
		"prometheus",
		"namespace",
	}
	for _, e := range elems {
		assert.Contains(t, configFile, e)
	}

	for _, section := range []string{"channel", "provider", "client", "transport", "instrumentation"} {
		assert.Contains(t, raw, section)
	}
}

func TestConfigFileRoundTrip(t *testing.T) {
	rootDir := t.TempDir()
	EnsureRoot(rootDir)

	cfg := DefaultConfig()
	cfg.Moniker = "alice"
	cfg.Channel.RatePerChar = "7"
	cfg.Provider.ServeInterval = 250 * time.Millisecond
	cfg.Provider.ContentFile = "content.txt"
	cfg.Client.AutoPay = false
	cfg.Transport.CORSAllowedOrigins = []string{"*"}
	cfg.Instrumentation.Prometheus = true
	require.NoError(t, WriteConfigFile(rootDir, cfg))

	v := viper.New()
	v.SetConfigFile(ConfigFile(rootDir))
	require.NoError(t, v.ReadInConfig())

	got := DefaultConfig()
	require.NoError(t, v.Unmarshal(got))
	got.SetRoot(rootDir)
	require.NoError(t, got.ValidateBasic())

	assert.Equal(t, "alice", got.Moniker)
	assert.Equal(t, "7", got.Channel.RatePerChar)
	assert.Equal(t, 250*time.Millisecond, got.Provider.ServeInterval)
	assert.Equal(t, filepath.Join(rootDir, "content.txt"), got.Provider.ContentPath())
	assert.False(t, got.Client.AutoPay)
	assert.Equal(t, []string{"*"}, got.Transport.CORSAllowedOrigins)
	assert.Equal(t, cfg.Transport.CORSAllowedMethods, got.Transport.CORSAllowedMethods)
	assert.True(t, got.Instrumentation.Prometheus)

	params, err := got.Channel.Params()
	require.NoError(t, err)
	assert.EqualValues(t, 7, params.RatePerChar.Int64())
}
