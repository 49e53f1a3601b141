// Package packet renders and parses SSDP datagrams: ssdp:alive and
// ssdp:byebye NOTIFY messages, and M-SEARCH 200 OK responses. Wire formats
// are exact byte sequences (CRLF line endings, fixed header order) to
// maximize interop with non-conformant SSDP listeners on the network.
package packet

import (
	"fmt"
	"strings"
	"time"
)

const (
	MulticastHost = "239.255.255.250:1900"

	maxHeaders = 16
)

// Alive renders an ssdp:alive NOTIFY message.
type Alive struct {
	DescURL     string
	ServerUA    string
	UDN         string
	DeviceType  string
	CacheMaxAge int
}

// Ok renders an M-SEARCH 200 OK response.
type Ok struct {
	DescURL     string
	ServerUA    string
	UDN         string
	DeviceType  string
	CacheMaxAge int
}

// ByeBye renders an ssdp:byebye NOTIFY message.
type ByeBye struct {
	UDN        string
	DeviceType string
}

// CacheMaxAge derives the CACHE-CONTROL max-age from the broadcast
// period: max(20, 2*period).
func CacheMaxAge(period time.Duration) int {
	age := int(2 * period.Seconds())
	if age < 20 {
		return 20
	}
	return age
}

func usn(udn, deviceType string) string {
	return fmt.Sprintf("%s::%s", udn, deviceType)
}

// Render emits the exact wire bytes for a packet value (Alive, Ok, or
// ByeBye).
func Render(p interface{}) []byte {
	switch v := p.(type) {
	case Alive:
		return renderAlive(v)
	case Ok:
		return renderOk(v)
	case ByeBye:
		return renderByeBye(v)
	default:
		panic(fmt.Sprintf("packet: unsupported type %T", p))
	}
}

func renderAlive(a Alive) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	b.WriteString("HOST:239.255.255.250:1900\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL:max-age=%d\r\n", a.CacheMaxAge)
	fmt.Fprintf(&b, "LOCATION:%s\r\n", a.DescURL)
	fmt.Fprintf(&b, "SERVER: %s\r\n", a.ServerUA)
	fmt.Fprintf(&b, "NT:%s\r\n", a.DeviceType)
	fmt.Fprintf(&b, "USN:%s\r\n", usn(a.UDN, a.DeviceType))
	b.WriteString("NTS:ssdp:alive\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

func renderOk(o Ok) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL:max-age=%d\r\n", o.CacheMaxAge)
	fmt.Fprintf(&b, "DATE: %s\r\n", rfc2822GMT(time.Now()))
	fmt.Fprintf(&b, "ST: %s\r\n", o.DeviceType)
	fmt.Fprintf(&b, "USN:%s\r\n", usn(o.UDN, o.DeviceType))
	b.WriteString("EXT:\r\n")
	fmt.Fprintf(&b, "SERVER: %s\r\n", o.ServerUA)
	fmt.Fprintf(&b, "LOCATION:%s\r\n", o.DescURL)
	b.WriteString("Content-Length: 0\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

func renderByeBye(bb ByeBye) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	b.WriteString("HOST:239.255.255.250:1900\r\n")
	fmt.Fprintf(&b, "NT:%s\r\n", bb.DeviceType)
	fmt.Fprintf(&b, "USN:%s\r\n", usn(bb.UDN, bb.DeviceType))
	b.WriteString("NTS:ssdp:byebye\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// rfc2822GMT formats t as RFC 2822 with the zone rewritten to GMT, the
// DATE header format real DLNA control points expect.
func rfc2822GMT(t time.Time) string {
	s := t.UTC().Format(time.RFC1123Z)
	return strings.Replace(s, "+0000", "GMT", 1)
}

// ParseError distinguishes a request line with no method from a
// malformed datagram.
type ParseError struct {
	Kind string // "NoMethod" or "Malformed"
	Msg  string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// Parse reads an inbound SSDP request (typically M-SEARCH) out of a raw
// UDP datagram. Header names are normalized to uppercase ASCII; values are
// decoded as UTF-8-lossy text since they are never trusted for binary
// semantics. Up to 16 headers are read; the rest are ignored.
func Parse(buf []byte) (method string, headers map[string]string, err error) {
	text := toValidUTF8(buf)
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return "", nil, &ParseError{Kind: "Malformed", Msg: "empty datagram"}
	}

	requestLine := strings.TrimRight(lines[0], "\r")
	fields := strings.Fields(requestLine)
	if len(fields) == 0 {
		return "", nil, &ParseError{Kind: "NoMethod", Msg: "empty request line"}
	}
	method = fields[0]

	headers = make(map[string]string, maxHeaders)
	count := 0
	for _, line := range lines[1:] {
		if count >= maxHeaders {
			break
		}
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if name == "" {
			continue
		}
		headers[name] = value
		count++
	}

	return method, headers, nil
}

// toValidUTF8 replaces invalid byte sequences with the UTF-8 replacement
// character rather than rejecting the datagram outright.
func toValidUTF8(buf []byte) string {
	return strings.ToValidUTF8(string(buf), "�")
}
