package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/streamer/types"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	// set up some defaults
	cfg := DefaultConfig()
	assert.NotNil(cfg.Channel)
	assert.NotNil(cfg.Provider)
	assert.NotNil(cfg.Transport)

	// check the root dir stuff...
	cfg.SetRoot("/foo")
	cfg.Key = "bar.json"
	assert.Equal("/foo/bar.json", cfg.KeyFile())
	assert.Empty(cfg.Provider.ContentPath())

	cfg.Provider.ContentFile = "/opt/script.txt"
	assert.Equal("/opt/script.txt", cfg.Provider.ContentPath())
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with serve_interval
	cfg.Provider.ServeInterval = -10 * time.Second
	assert.Error(t, cfg.ValidateBasic())
}

func TestBaseConfigValidateBasic(t *testing.T) {
	cfg := TestBaseConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with log format
	cfg.LogFormat = "invalid"
	assert.Error(t, cfg.ValidateBasic())

	cfg = TestBaseConfig()
	cfg.LogLevel = "loud"
	assert.Error(t, cfg.ValidateBasic())
}

func TestChannelConfigParams(t *testing.T) {
	params, err := DefaultChannelConfig().Params()
	require.NoError(t, err)
	assert.Equal(t, types.DefaultChannelParams(), params)

	testCases := []struct {
		name    string
		initial string
		rate    string
	}{
		{"not a number", "half an ether", "1"},
		{"hex", "0x10", "1"},
		{"zero deposit", "0", "1"},
		{"negative rate", "100", "-1"},
		{"too large", "1" + strings.Repeat("0", 80), "1"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := &ChannelConfig{InitialBalance: tc.initial, RatePerChar: tc.rate}
			assert.Error(t, cfg.ValidateBasic())
		})
	}
}

func TestTransportConfigValidateBasic(t *testing.T) {
	cfg := TestTransportConfig()
	assert.NoError(t, cfg.ValidateBasic())
	assert.False(t, cfg.IsCorsEnabled())

	cfg.CORSAllowedOrigins = []string{"*"}
	assert.True(t, cfg.IsCorsEnabled())

	fieldsToTest := map[string]func(*TransportConfig){
		"Kind":               func(c *TransportConfig) { c.Kind = "carrier-pigeon" },
		"MaxOpenConnections": func(c *TransportConfig) { c.MaxOpenConnections = -1 },
		"BufferSize":         func(c *TransportConfig) { c.BufferSize = 0 },
		"PingPeriod":         func(c *TransportConfig) { c.PingPeriod = 0 },
		"RemoteAddress":      func(c *TransportConfig) { c.RemoteAddress = "http://127.0.0.1:26690" },
	}
	for name, tamper := range fieldsToTest {
		cfg := TestTransportConfig()
		tamper(cfg)
		assert.Error(t, cfg.ValidateBasic(), name)
	}
}

func TestClientConfigValidateBasic(t *testing.T) {
	cfg := TestClientConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.EscrowURL = "not a url"
	assert.Error(t, cfg.ValidateBasic())

	cfg = TestClientConfig()
	cfg.PollInterval = 0
	assert.Error(t, cfg.ValidateBasic())
}

func TestInstrumentationConfigValidateBasic(t *testing.T) {
	cfg := TestInstrumentationConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.Prometheus = true
	cfg.PrometheusListenAddr = ""
	assert.Error(t, cfg.ValidateBasic())
}
