package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeLNURL(t *testing.T) {
	// Vector from the LUD-01 document.
	const raw = "https://service.com/api?q=3fc3645b439ce8e7f2553a69e5267081d96dcd340693afabe04be7b0ccd178df"
	const want = "LNURL1DP68GURN8GHJ7UM9WFMXJCM99E3K7MF0V9CXJ0M385EKVCENXC6R2C35XVUKXEFCV5MKVV34X5EKZD3EV56NYD3HXQURZEPEXEJXXEPNXSCRVWFNV9NXZCN9XQ6XYEFHVGCXXCMYXYMNSERXFQ5FNS"

	got, err := EncodeLNURL(raw)
	require.NoError(t, err)
	require.Equal(t, want, got)

	back, err := DecodeLNURL(want)
	require.NoError(t, err)
	require.Equal(t, raw, back)
}

func TestDecodeLNURLRejectsOtherPrefixes(t *testing.T) {
	_, err := DecodeLNURL("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	require.ErrorIs(t, err, ErrInvalidLNURL)

	_, err = DecodeLNURL(strings.Repeat("x", 10))
	require.ErrorIs(t, err, ErrInvalidLNURL)
}
