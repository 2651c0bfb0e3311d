package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	require.True(t, strings.HasPrefix(Version, StreamerSemVer))
	if GitCommit == "" {
		require.Equal(t, StreamerSemVer, Version)
	}
	require.EqualValues(t, 1, WireProtocol.Uint64())
}
