package packet

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMaxAge(t *testing.T) {
	assert.Equal(t, 20, CacheMaxAge(5*time.Second))
	assert.Equal(t, 1790, CacheMaxAge(895*time.Second))
}

func TestRenderAlive(t *testing.T) {
	out := string(Render(Alive{
		DescURL:     "http://10.0.0.1:8000/desc.xml",
		ServerUA:    "DLNAProxy/1.0",
		UDN:         "uuid:abc",
		DeviceType:  "urn:schemas-upnp-org:device:MediaServer:1",
		CacheMaxAge: 1790,
	}))

	assert.True(t, strings.HasPrefix(out, "NOTIFY * HTTP/1.1\r\n"))
	assert.Contains(t, out, "HOST:239.255.255.250:1900\r\n")
	assert.Contains(t, out, "NTS:ssdp:alive\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"))
}

func TestRenderOk(t *testing.T) {
	out := string(Render(Ok{
		DescURL:     "http://10.0.0.1:8000/desc.xml",
		ServerUA:    "DLNAProxy/1.0",
		UDN:         "uuid:abc",
		DeviceType:  "urn:schemas-upnp-org:device:MediaServer:1",
		CacheMaxAge: 1790,
	}))

	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "EXT:\r\n")
	assert.Contains(t, out, "Content-Length: 0\r\n")

	idx := strings.Index(out, "DATE: ")
	require.GreaterOrEqual(t, idx, 0)
	line := out[idx:strings.Index(out[idx:], "\r\n")+idx]
	assert.True(t, strings.HasSuffix(line, "GMT"))
}

func TestRenderByeBye(t *testing.T) {
	out := string(Render(ByeBye{
		UDN:        "uuid:abc",
		DeviceType: "urn:schemas-upnp-org:device:MediaServer:1",
	}))

	assert.Contains(t, out, "NTS:ssdp:byebye\r\n")
	assert.NotContains(t, out, "CACHE-CONTROL")
	assert.NotContains(t, out, "LOCATION")
	assert.NotContains(t, out, "SERVER")
}

func TestParseMSearch(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 2\r\n" +
		"ST: ssdp:all\r\n" +
		"\r\n"

	method, headers, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "M-SEARCH", method)
	assert.Equal(t, "ssdp:all", headers["ST"])
	assert.Equal(t, "239.255.255.250:1900", headers["HOST"])
}

func TestParseMalformedNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("\x00\x01\xff\xfe"),
		[]byte("garbage with no headers at all"),
		[]byte("M-SEARCH * HTTP/1.1"),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _, _ = Parse(in)
		})
	}
}

func TestParseUppercasesHeaderNames(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nst: upnp:rootdevice\r\n\r\n"
	_, headers, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "upnp:rootdevice", headers["ST"])
}
