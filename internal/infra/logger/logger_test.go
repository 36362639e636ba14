package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "DEBUG", Encoding: "json", Service: "lnurlp"})
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Config{Development: true, Level: "warn"})
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)

	_, err = New(Config{Encoding: "xml"})
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_ENCODING", "json")

	cfg := ConfigFromEnv("lnurlp")
	require.Equal(t, Config{Level: "error", Encoding: "json", Service: "lnurlp"}, cfg)
}
