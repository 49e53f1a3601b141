package proxy

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChunkSize(t *testing.T) {
	cases := []struct {
		line string
		want int64
	}{
		{"0\r\n", 0},
		{"a\r\n", 10},
		{"FF\r\n", 255},
		{"DEADBEEF\r\n", 0xDEADBEEF},
		{"10;name=value\r\n", 16},
	}
	for _, c := range cases {
		got, err := ParseChunkSize(c.line)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "line %q", c.line)
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	body := make([]byte, 256)
	for i := range body {
		body[i] = byte(i)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteChunkedBody(&buf, body))

	got, err := ReadChunkedBody(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestChunkedRoundTripEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChunkedBody(&buf, nil))

	got, err := ReadChunkedBody(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadChunkedBodyEnforcesBudget(t *testing.T) {
	var raw strings.Builder
	raw.WriteString("c00000\r\n")
	_, err := ReadChunkedBody(bufio.NewReader(strings.NewReader(raw.String())))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRewriteBudgetExceeded)
}

func TestPassThroughChunkedBodyPreservesExtensions(t *testing.T) {
	raw := "5;ext=1\r\nhello\r\n0\r\n\r\n"
	var out bytes.Buffer
	require.NoError(t, PassThroughChunkedBody(&out, bufio.NewReader(strings.NewReader(raw))))
	assert.Equal(t, raw, out.String())
}

func TestReadChunkedBodyMultipleChunks(t *testing.T) {
	raw := "3\r\nfoo\r\n3\r\nbar\r\n0\r\n\r\n"
	got, err := ReadChunkedBody(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "foobar", string(got))
}
