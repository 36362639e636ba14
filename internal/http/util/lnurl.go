package util

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const lnurlHRP = "lnurl"

var ErrInvalidLNURL = errors.New("invalid lnurl")

// EncodeLNURL bech32-encodes a URL with the "lnurl" prefix, upper-cased
// as wallets and QR encoders expect.
func EncodeLNURL(rawURL string) (string, error) {
	conv, err := bech32.ConvertBits([]byte(rawURL), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("lnurl: convert bits: %w", err)
	}
	encoded, err := bech32.Encode(lnurlHRP, conv)
	if err != nil {
		return "", fmt.Errorf("lnurl: encode: %w", err)
	}
	return strings.ToUpper(encoded), nil
}

// DecodeLNURL reverses EncodeLNURL. LNURLs exceed the 90 character
// bech32 limit, so the unbounded decoder is used.
func DecodeLNURL(lnurl string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(lnurl))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLNURL, err)
	}
	if hrp != lnurlHRP {
		return "", fmt.Errorf("%w: unexpected prefix %q", ErrInvalidLNURL, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLNURL, err)
	}
	if _, err := url.Parse(string(raw)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLNURL, err)
	}
	return string(raw), nil
}
