package natsclient

import (
	"testing"

	"github.com/sifan077/lnurlp/config"
	"github.com/stretchr/testify/require"
)

func TestServerURL(t *testing.T) {
	require.Equal(t, "nats://localhost:4222", ServerURL(config.NATSConfig{}))
	require.Equal(t, "nats://bus.internal:4333", ServerURL(config.NATSConfig{Host: "bus.internal", Port: 4333, User: "u"}))
}
