package proxy

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewriteFixture() URLRewrite {
	return URLRewrite{OriginBase: "http://10.0.0.1:8000", ProxyBase: "http://192.168.1.2:9000"}
}

func TestForwardResponsesRewritesFixedLengthXML(t *testing.T) {
	body := "<URLBase>http://10.0.0.1:8000/</URLBase>"
	raw := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/xml\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	var out strings.Builder
	err := forwardResponses(context.Background(), &out, bufio.NewReader(strings.NewReader(raw)), rewriteFixture())
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "http://192.168.1.2:9000/")
	assert.NotContains(t, got, "10.0.0.1:8000")
}

func TestForwardResponsesPassesThroughMediaStream(t *testing.T) {
	body := strings.Repeat("x", 1024)
	raw := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: video/mp4\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	var out strings.Builder
	err := forwardResponses(context.Background(), &out, bufio.NewReader(strings.NewReader(raw)), rewriteFixture())
	require.NoError(t, err)
	assert.Contains(t, out.String(), body)
}

func TestForwardResponsesRewritesSingleChunk(t *testing.T) {
	xmlBody := "<a>http://10.0.0.1:8000/x</a>"
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/xml\r\nTransfer-Encoding: chunked\r\n\r\n" +
		fmt.Sprintf("%x\r\n%s\r\n0\r\n\r\n", len(xmlBody), xmlBody)

	var out strings.Builder
	err := forwardResponses(context.Background(), &out, bufio.NewReader(strings.NewReader(raw)), rewriteFixture())
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "http://192.168.1.2:9000/x")
	assert.True(t, strings.HasSuffix(got, "0\r\n\r\n"))
}

func TestForwardResponsesPassesThroughChunkedMedia(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: video/mp4\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\ndata\r\n0\r\n\r\n"

	var out strings.Builder
	err := forwardResponses(context.Background(), &out, bufio.NewReader(strings.NewReader(raw)), rewriteFixture())
	require.NoError(t, err)
	assert.Equal(t, raw, out.String())
}

func TestForwardResponsesStreamsWithoutLengthOrChunking(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n\r\nsome unbounded stream bytes"

	var out strings.Builder
	err := forwardResponses(context.Background(), &out, bufio.NewReader(strings.NewReader(raw)), rewriteFixture())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "some unbounded stream bytes")
}

func TestForwardResponsesHandlesKeepAliveSequence(t *testing.T) {
	first := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"
	second := "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nbye"
	raw := first + second

	var out strings.Builder
	err := forwardResponses(context.Background(), &out, bufio.NewReader(strings.NewReader(raw)), rewriteFixture())
	require.NoError(t, err)
	got := out.String()
	assert.Contains(t, got, "hi")
	assert.Contains(t, got, "bye")
}
