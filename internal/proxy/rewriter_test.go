package proxy

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRewriteContentType(t *testing.T) {
	cases := []struct {
		contentType string
		want        bool
	}{
		{"text/xml", true},
		{"text/plain", true},
		{"application/xml", true},
		{"application/json", true},
		{"text/html; charset=utf-8", true},
		{"APPLICATION/XML", true},
		{"video/mp4", false},
		{"audio/mpeg", false},
		{"image/jpeg", false},
		{"application/octet-stream", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, shouldRewriteContentType(c.contentType), "content-type %q", c.contentType)
	}
}

func TestReadResponseHeaderParsesFields(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/xml\r\nContent-Length: 64\r\n\r\n"
	h, err := readResponseHeader(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", h.statusLine)
	assert.True(t, h.hasLength)
	assert.EqualValues(t, 64, h.contentLength)
	assert.True(t, h.needsRewrite)
	assert.False(t, h.chunked)
}

func TestReadResponseHeaderDetectsChunked(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"
	h, err := readResponseHeader(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.True(t, h.chunked)
	assert.False(t, h.hasLength)
}

func TestReadResponseHeaderAcceptsBareLF(t *testing.T) {
	raw := "HTTP/1.1 200 OK\nContent-Length: 0\n\n"
	h, err := readResponseHeader(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.True(t, h.hasLength)
}

func TestWriteHeaderWithContentLengthReplacesExistingValue(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/xml\r\nContent-Length: 64\r\n\r\n"
	h, err := readResponseHeader(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, writeHeaderWithContentLength(&out, h, 25))

	got := out.String()
	assert.Contains(t, got, "Content-Length: 25\r\n")
	assert.NotContains(t, got, "Content-Length: 64")
	assert.Contains(t, got, "Content-Type: text/xml\r\n")
	assert.Equal(t, 1, strings.Count(got, "Content-Length:"))
}

func TestRewriteBodyReplacesOriginBase(t *testing.T) {
	body := []byte("<URLBase>http://10.0.0.1:8000/</URLBase>")
	out := rewriteBody(body, "http://10.0.0.1:8000", "http://192.168.1.2:9000")
	assert.Contains(t, string(out), "http://192.168.1.2:9000/")
	assert.NotContains(t, string(out), "10.0.0.1:8000")
}

func TestLogStatusLineTruncatesAndFilters(t *testing.T) {
	raw := strings.Repeat("A", 150) + "\r\n"
	got := logStatusLine(raw)
	assert.Len(t, got, 100)

	withControl := "HTTP/1.1 200 OK\x07\x1b\r\n"
	got2 := logStatusLine(withControl)
	assert.Equal(t, "HTTP/1.1 200 OK", got2)
}
