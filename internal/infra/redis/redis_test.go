package redis

import (
	"testing"

	"github.com/sifan077/lnurlp/config"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	opts := Options(config.RedisConfig{})
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, "lnurlp", opts.ClientName)

	opts = Options(config.RedisConfig{Host: "cache", Port: 6380, Password: "secret", DB: 2})
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB)
}
