package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tendermint/streamer/types"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// TransportWebsocket connects both ends through the provider's websocket hub.
	TransportWebsocket = "ws"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
var (
	DefaultStreamerDir = ".streamer"
	defaultConfigDir   = "config"
	defaultDataDir     = "data"

	defaultConfigFileName = "config.toml"
	defaultKeyName        = "key.json"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultKeyPath        = filepath.Join(defaultConfigDir, defaultKeyName)
)

// Config defines the top level configuration for a streamer node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Channel         *ChannelConfig         `mapstructure:"channel"`
	Provider        *ProviderConfig        `mapstructure:"provider"`
	Client          *ClientConfig          `mapstructure:"client"`
	Transport       *TransportConfig       `mapstructure:"transport"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a streamer node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Channel:         DefaultChannelConfig(),
		Provider:        DefaultProviderConfig(),
		Client:          DefaultClientConfig(),
		Transport:       DefaultTransportConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Channel:         TestChannelConfig(),
		Provider:        TestProviderConfig(),
		Client:          TestClientConfig(),
		Transport:       TestTransportConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Provider.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Channel.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [channel] section: %w", err)
	}
	if err := cfg.Provider.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [provider] section: %w", err)
	}
	if err := cfg.Client.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [client] section: %w", err)
	}
	if err := cfg.Transport.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [transport] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a streamer node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format"`

	// Path to the JSON file holding the secp256k1 key that signs vouchers
	// and escrow transactions
	Key string `mapstructure:"key_file"`
}

// DefaultBaseConfig returns a default base configuration for a streamer node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Key:       defaultKeyPath,
		Moniker:   defaultMoniker,
		LogLevel:  "info",
		LogFormat: LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing a streamer node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.LogLevel = "debug"
	return cfg
}

// KeyFile returns the full path to the key.json file
func (cfg BaseConfig) KeyFile() string {
	return rootify(cfg.Key, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log_format (must be 'plain' or 'json')")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q (must be debug, info, warn or error)", cfg.LogLevel)
	}
	if cfg.Key == "" {
		return errors.New("key_file can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ChannelConfig

// ChannelConfig holds the economic parameters both ends must agree on.
// Amounts are decimal strings in wei so they survive TOML's int64 limit.
type ChannelConfig struct {
	// Deposit locked in the escrow when the channel is funded
	InitialBalance string `mapstructure:"initial_balance"`

	// Price of a single character of content
	RatePerChar string `mapstructure:"rate_per_char"`
}

// DefaultChannelConfig returns a 0.5 ether channel charging 0.01 ether per
// character.
func DefaultChannelConfig() *ChannelConfig {
	params := types.DefaultChannelParams()
	return &ChannelConfig{
		InitialBalance: params.InitialBalance.String(),
		RatePerChar:    params.RatePerChar.String(),
	}
}

// TestChannelConfig returns a configuration for testing.
func TestChannelConfig() *ChannelConfig {
	return DefaultChannelConfig()
}

// Params parses the configured amounts.
func (cfg *ChannelConfig) Params() (types.ChannelParams, error) {
	initial, ok := new(big.Int).SetString(cfg.InitialBalance, 10)
	if !ok {
		return types.ChannelParams{}, fmt.Errorf("initial_balance %q is not a decimal integer", cfg.InitialBalance)
	}
	rate, ok := new(big.Int).SetString(cfg.RatePerChar, 10)
	if !ok {
		return types.ChannelParams{}, fmt.Errorf("rate_per_char %q is not a decimal integer", cfg.RatePerChar)
	}
	params := types.ChannelParams{InitialBalance: initial, RatePerChar: rate}
	if err := params.ValidateBasic(); err != nil {
		return types.ChannelParams{}, err
	}
	return params, nil
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ChannelConfig) ValidateBasic() error {
	_, err := cfg.Params()
	return err
}

//-----------------------------------------------------------------------------
// ProviderConfig

// ProviderConfig defines the configuration of the serving end.
type ProviderConfig struct {
	RootDir string `mapstructure:"home"`

	// How often the escrow is polled for opened, challenged and closed
	// channels
	ChallengePollInterval time.Duration `mapstructure:"challenge_poll_interval"`

	// Delay between two chunks of the content script sent to each client
	ServeInterval time.Duration `mapstructure:"serve_interval"`

	// Text file streamed to every client, one line per chunk.
	// Empty disables the feed.
	ContentFile string `mapstructure:"content_file"`

	// Length of the challenge window of the simulated escrow hosted by the
	// provider
	ChallengePeriod time.Duration `mapstructure:"challenge_period"`

	// Redeem the best voucher of a channel as soon as its client challenges
	CashOutOnChallenge bool `mapstructure:"cash_out_on_challenge"`
}

// DefaultProviderConfig returns a default configuration for the provider.
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		ChallengePollInterval: 2 * time.Second,
		ServeInterval:         time.Second,
		ContentFile:           "",
		ChallengePeriod:       30 * time.Second,
		CashOutOnChallenge:    true,
	}
}

// TestProviderConfig returns a configuration for testing the provider.
func TestProviderConfig() *ProviderConfig {
	cfg := DefaultProviderConfig()
	cfg.ChallengePollInterval = 50 * time.Millisecond
	cfg.ServeInterval = 10 * time.Millisecond
	cfg.ChallengePeriod = time.Second
	return cfg
}

// ContentPath returns the full path to the content file, or "" when the feed
// is disabled.
func (cfg *ProviderConfig) ContentPath() string {
	if cfg.ContentFile == "" {
		return ""
	}
	return rootify(cfg.ContentFile, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ProviderConfig) ValidateBasic() error {
	if cfg.ChallengePollInterval <= 0 {
		return errors.New("challenge_poll_interval must be positive")
	}
	if cfg.ServeInterval <= 0 {
		return errors.New("serve_interval must be positive")
	}
	if cfg.ChallengePeriod < 0 {
		return errors.New("challenge_period can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ClientConfig

// ClientConfig defines the configuration of the paying end.
type ClientConfig struct {
	// Sign and send a voucher after every piece of content
	AutoPay bool `mapstructure:"auto_pay"`

	// Fund the channel with the initial balance on start when it is not open
	FundOnStart bool `mapstructure:"fund_on_start"`

	// Base URL of the escrow served by the provider
	EscrowURL string `mapstructure:"escrow_url"`

	// How often the escrow is polled for the channel state
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DefaultClientConfig returns a default configuration for the client.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		AutoPay:      true,
		FundOnStart:  true,
		EscrowURL:    "http://127.0.0.1:26690",
		PollInterval: 2 * time.Second,
	}
}

// TestClientConfig returns a configuration for testing the client.
func TestClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.PollInterval = 50 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ClientConfig) ValidateBasic() error {
	if _, err := url.ParseRequestURI(cfg.EscrowURL); err != nil {
		return fmt.Errorf("invalid escrow_url: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// TransportConfig

// TransportConfig defines how channel messages travel between the two ends.
type TransportConfig struct {
	// Transport kind. Only "ws" is supported.
	Kind string `mapstructure:"kind"`

	// TCP address the provider serves the websocket hub, escrow and
	// status endpoints on
	ListenAddress string `mapstructure:"listen_addr"`

	// Websocket URL of the provider's hub, dialed by the client
	RemoteAddress string `mapstructure:"remote_addr"`

	// Maximum number of simultaneous connections to the listen address.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`

	// Messages queued per subscription before senders block
	BufferSize int `mapstructure:"buffer_size"`

	// How often the websocket connections are pinged
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// A list of origins a cross-domain request can be executed from.
	// If the special '*' value is present in the list, all origins will be allowed.
	// An origin may contain a wildcard (*) to replace 0 or more characters
	// (i.e.: http://*.domain.com). Only one wildcard can be used per origin.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// A list of methods the client is allowed to use with cross-domain requests.
	CORSAllowedMethods []string `mapstructure:"cors_allowed_methods"`

	// A list of non simple headers the client is allowed to use with cross-domain requests.
	CORSAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
}

// DefaultTransportConfig returns a default configuration for the transport.
func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{
		Kind:               TransportWebsocket,
		ListenAddress:      "127.0.0.1:26690",
		RemoteAddress:      "ws://127.0.0.1:26690/websocket",
		MaxOpenConnections: 900,
		BufferSize:         64,
		PingPeriod:         30 * time.Second,
		CORSAllowedOrigins: []string{},
		CORSAllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		CORSAllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "X-Server-Time"},
	}
}

// TestTransportConfig returns a configuration for testing the transport.
func TestTransportConfig() *TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *TransportConfig) ValidateBasic() error {
	if cfg.Kind != TransportWebsocket {
		return fmt.Errorf("unknown transport kind %q (must be %q)", cfg.Kind, TransportWebsocket)
	}
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max_open_connections can't be negative")
	}
	if cfg.BufferSize <= 0 {
		return errors.New("buffer_size must be positive")
	}
	if cfg.PingPeriod <= 0 {
		return errors.New("ping_period must be positive")
	}
	if cfg.RemoteAddress != "" {
		u, err := url.Parse(cfg.RemoteAddress)
		if err != nil {
			return fmt.Errorf("invalid remote_addr: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("remote_addr scheme must be ws or wss, got %q", u.Scheme)
		}
	}
	return nil
}

// IsCorsEnabled returns true if cross-origin resource sharing is enabled.
func (cfg *TransportConfig) IsCorsEnabled() bool {
	return len(cfg.CORSAllowedOrigins) != 0
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "streamer",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus_listen_addr can't be empty when prometheus is on")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If runtime
// fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
