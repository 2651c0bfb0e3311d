package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/streamer/config"
	"github.com/tendermint/streamer/crypto"
	"github.com/tendermint/streamer/internal/escrow"
	"github.com/tendermint/streamer/libs/cli"
	"github.com/tendermint/streamer/libs/log"
	tmos "github.com/tendermint/streamer/libs/os"
	"github.com/tendermint/streamer/version"
)

// writeConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func writeConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// clearConfig clears env vars, the given root dir, and resets viper.
func clearConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	require.NoError(t, os.Unsetenv("STREAMERHOME"))
	require.NoError(t, os.Unsetenv("STREAMER_HOME"))
	require.NoError(t, os.Unsetenv("STREAMER_LOG_LEVEL"))
	require.NoError(t, os.RemoveAll(dir))

	viper.Reset()
	conf := config.DefaultConfig()
	conf.SetRoot(dir)

	return conf
}

// prepare new rootCmd, with every subcommand and conf.RootDir as the default
// home
func testRootCmd(conf *config.Config, out io.Writer) *cobra.Command {
	logger := log.NewNopLogger()
	cmd := RootCommand(conf, logger)
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	var l string
	cmd.PersistentFlags().String("log", l, "Log")

	home := cmd.PersistentFlags().Lookup(cli.HomeFlag)
	home.DefValue = conf.RootDir
	_ = home.Value.Set(conf.RootDir)

	cmd.AddCommand(
		MakeInitCommand(conf, logger),
		GenKeyCmd,
		MakeShowAddressCommand(conf),
		MakeProviderCommand(conf, logger),
		MakeClientCommand(conf, logger),
		MakeDevnetCommand(conf, logger),
		VersionCmd,
	)
	cmd.SetOut(out)
	return cmd
}

func testSetup(ctx context.Context, t *testing.T, conf *config.Config, args []string, env map[string]string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := testRootCmd(conf, &out)

	// run with the args and env
	args = append([]string{cmd.Use}, args...)
	err := cli.RunWithArgs(ctx, cmd, args, env)
	return out.String(), err
}

func TestRootHome(t *testing.T) {
	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{nil, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"STREAMERHOME": newRoot}, newRoot},
		{nil, map[string]string{"STREAMER_HOME": newRoot}, newRoot},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, defaultRoot)

			_, err := testSetup(ctx, t, conf, tc.args, tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.root, conf.RootDir)
			require.Equal(t, tc.root, conf.Provider.RootDir)
			require.True(t, tmos.FileExists(filepath.Join(tc.root, "config")))
		})
	}
}

func TestRootFlagsEnv(t *testing.T) {
	// defaults
	defaults := config.DefaultConfig()
	defaultDir := t.TempDir()

	defaultLogLvl := defaults.LogLevel

	cases := []struct {
		args     []string
		env      map[string]string
		logLevel string
	}{
		{[]string{"--log", "debug"}, nil, defaultLogLvl}, // wrong flag
		{[]string{"--log_level", "debug"}, nil, "debug"}, // right flag
		{nil, map[string]string{"STREAMER_LOG_LEVEL": "warn"}, "warn"},
		{nil, map[string]string{"STREAMERLOG_LEVEL": "error"}, "error"},
		// flag over rides env
		{[]string{"--log_level", "debug"}, map[string]string{"STREAMER_LOG_LEVEL": "warn"}, "debug"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, defaultDir)

			_, err := testSetup(ctx, t, conf, tc.args, tc.env)
			require.NoError(t, err)

			assert.Equal(t, tc.logLevel, conf.LogLevel)
		})
	}
}

func TestRootConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// write non-default config
	nonDefaultLogLvl := "debug"
	cvals := map[string]string{
		"log_level": nonDefaultLogLvl,
		"moniker":   "from-file",
	}

	cases := []struct {
		args   []string
		env    map[string]string
		logLvl string
	}{
		{nil, nil, nonDefaultLogLvl},                // should load config
		{[]string{"--log_level=info"}, nil, "info"}, // flag over rides
	}

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			defaultRoot := t.TempDir()
			conf := clearConfig(t, defaultRoot)

			configFilePath := filepath.Join(defaultRoot, "config")
			require.NoError(t, tmos.EnsureDir(configFilePath, 0700))

			// write the non-defaults to a different path
			require.NoError(t, writeConfigVals(configFilePath, cvals))

			_, err := testSetup(ctx, t, conf, tc.args, tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.logLvl, conf.LogLevel)
			require.Equal(t, "from-file", conf.Moniker)
		})
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	_, err := testSetup(ctx, t, conf, []string{"--log_level", "loud"}, nil)
	require.Error(t, err)
}

func TestInitFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	conf := clearConfig(t, root)
	out, err := testSetup(ctx, t, conf, []string{"init"}, nil)
	require.NoError(t, err)
	addr := strings.TrimSpace(out)

	assert.True(t, tmos.FileExists(config.ConfigFile(root)))
	signer, err := crypto.LoadKeyFile(conf.KeyFile())
	require.NoError(t, err)
	assert.Equal(t, signer.Address().Hex(), addr)

	// a second init keeps the key
	conf = clearConfig(t, t.TempDir())
	out, err = testSetup(ctx, t, conf, []string{"init", "--home", root}, nil)
	require.NoError(t, err)
	assert.Equal(t, addr, strings.TrimSpace(out))

	conf = clearConfig(t, t.TempDir())
	out, err = testSetup(ctx, t, conf, []string{"show-address", "--home", root}, nil)
	require.NoError(t, err)
	assert.Equal(t, addr, strings.TrimSpace(out))
}

func TestShowAddressWithoutKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	_, err := testSetup(ctx, t, conf, []string{"show-address"}, nil)
	require.Error(t, err)
}

func TestGenKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	out, err := testSetup(ctx, t, conf, []string{"gen-key"}, nil)
	require.NoError(t, err)

	var kf crypto.KeyFile
	require.NoError(t, json.Unmarshal([]byte(out), &kf))
	signer, err := crypto.PrivKeySignerFromHex(kf.PrivKey)
	require.NoError(t, err)
	assert.Equal(t, signer.Address().Hex(), kf.Address)
}

func TestVersion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	out, err := testSetup(ctx, t, conf, []string{"version"}, nil)
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestChannelCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := escrow.NewSimulated()
	srv := httptest.NewServer(escrow.NewHTTPHandler(log.NewNopLogger(), sim))
	defer srv.Close()

	root := t.TempDir()
	run := func(args ...string) (string, error) {
		conf := clearConfig(t, t.TempDir())
		args = append(args, "--home", root)
		return testSetup(ctx, t, conf, args, map[string]string{"STREAMER_CLIENT_ESCROW_URL": srv.URL})
	}

	_, err := run("client", "status")
	require.Error(t, err, "no key yet")

	_, err = run("client", "withdraw")
	require.Error(t, err)

	out, err := run("client", "fund")
	require.NoError(t, err)
	assert.Equal(t, "opened", strings.TrimSpace(out))

	signer, err := crypto.LoadKeyFile(filepath.Join(root, "config", "key.json"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Channel.InitialBalance, sim.Balance(signer.Address()).String())

	_, err = run("client", "fund")
	require.Error(t, err)

	out, err = run("client", "status")
	require.NoError(t, err)
	assert.Equal(t, signer.Address().Hex()+" opened", strings.TrimSpace(out))

	out, err = run("client", "challenge")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "challenged"), out)

	_, err = run("client", "withdraw")
	require.Error(t, err)
}
