package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	tmos "github.com/tendermint/streamer/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/streamer/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return writeFile(path, buffer.Bytes(), 0644)
}

// ConfigFile returns the full path of the config.toml under rootDir.
func ConfigFile(rootDir string) string {
	return filepath.Join(rootDir, defaultConfigFilePath)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	if !tmos.FileExists(ConfigFile(rootDir)) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/streamer/content.txt") or
# relative to the home directory (e.g. "content.txt"). The home directory is
# "$HOME/.streamer" by default, but could be changed via $STREAMER_HOME env
# variable or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Output level for logging: debug | info | warn | error
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file holding the secp256k1 key that signs vouchers
# and escrow transactions
key_file = "{{ js .BaseConfig.Key }}"

#######################################################
###           Channel Configuration Options         ###
#######################################################
[channel]

# Deposit locked in the escrow when a channel is funded, in wei.
# Both ends must use the same value.
initial_balance = "{{ .Channel.InitialBalance }}"

# Price of one character of content, in wei
rate_per_char = "{{ .Channel.RatePerChar }}"

#######################################################
###          Provider Configuration Options         ###
#######################################################
[provider]

# How often the escrow is polled for opened, challenged and closed channels
challenge_poll_interval = "{{ .Provider.ChallengePollInterval }}"

# Delay between two chunks of the content script sent to each client
serve_interval = "{{ .Provider.ServeInterval }}"

# Text file streamed to every client, one line per chunk.
# Leave empty to disable the feed.
content_file = "{{ js .Provider.ContentFile }}"

# Length of the challenge window of the escrow hosted by the provider
challenge_period = "{{ .Provider.ChallengePeriod }}"

# Redeem the best voucher of a channel as soon as its client challenges
cash_out_on_challenge = {{ .Provider.CashOutOnChallenge }}

#######################################################
###           Client Configuration Options          ###
#######################################################
[client]

# Sign and send a voucher after every piece of content
auto_pay = {{ .Client.AutoPay }}

# Fund the channel with initial_balance on start when it is not open yet
fund_on_start = {{ .Client.FundOnStart }}

# Base URL of the escrow served by the provider
escrow_url = "{{ .Client.EscrowURL }}"

# How often the escrow is polled for the channel state
poll_interval = "{{ .Client.PollInterval }}"

#######################################################
###         Transport Configuration Options         ###
#######################################################
[transport]

# Transport kind. Only "ws" is supported.
kind = "{{ .Transport.Kind }}"

# TCP address the provider serves the websocket hub, escrow and status
# endpoints on
listen_addr = "{{ .Transport.ListenAddress }}"

# Websocket URL of the provider's hub, dialed by the client
remote_addr = "{{ .Transport.RemoteAddress }}"

# Maximum number of simultaneous connections to listen_addr.
# 0 - unlimited.
max_open_connections = {{ .Transport.MaxOpenConnections }}

# Messages queued per subscription before senders block
buffer_size = {{ .Transport.BufferSize }}

# How often the websocket connections are pinged
ping_period = "{{ .Transport.PingPeriod }}"

# A list of origins a cross-domain request can be executed from
# Default value '[]' disables cors support
# Use '["*"]' to allow any origin
cors_allowed_origins = [{{ range .Transport.CORSAllowedOrigins }}{{ printf "%q, " . }}{{end}}]

# A list of methods the client is allowed to use with cross-domain requests
cors_allowed_methods = [{{ range .Transport.CORSAllowedMethods }}{{ printf "%q, " . }}{{end}}]

# A list of non simple headers the client is allowed to use with cross-domain requests
cors_allowed_headers = [{{ range .Transport.CORSAllowedHeaders }}{{ printf "%q, " . }}{{end}}]

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a fresh home directory under dir holding the default
// config file and returns the test configuration rooted there.
func ResetTestRoot(dir, testName string) (*Config, error) {
	// create a unique, concurrency-safe test directory under dir
	rootDir, err := os.MkdirTemp(dir, testName+"_")
	if err != nil {
		return nil, err
	}
	// ensure config and data subdirs are created
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		return nil, err
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		return nil, err
	}

	// Write default config file if missing.
	if err := writeDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}

	config := TestConfig().SetRoot(rootDir)
	config.Instrumentation.Namespace = strings.ReplaceAll(testName, "-", "_")
	return config, nil
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if err := os.WriteFile(filePath, contents, mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
