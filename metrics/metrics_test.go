package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToDisabled(t *testing.T) {
	s, closer, err := New(Config{}, "")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NotNil(t, closer)
	s.Counter("test").Inc(1)
}

func TestNewUnknownBackend(t *testing.T) {
	_, _, err := New(Config{Backend: "bogus"}, "")
	require.Error(t, err)
}

func TestNewM3RequiresCluster(t *testing.T) {
	_, _, err := New(Config{Backend: "m3", M3: M3Config{Service: "svc", HostPort: "localhost:1"}}, "")
	require.Error(t, err)
}
