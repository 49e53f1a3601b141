package proxy

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// responseHeader holds one parsed HTTP response's header section, in the
// exact line order the origin sent them, plus the fields the rewriter
// loop needs to make its framing decision.
type responseHeader struct {
	statusLine    string
	lines         []string // header lines, raw, each including its terminator
	contentLength int64
	hasLength     bool
	chunked       bool
	needsRewrite  bool
}

// readResponseHeader reads one HTTP response's header block as raw
// bytes, not as UTF-8 — CRLF or LF terminators are both accepted, and end
// of headers is a line equal to "\r\n" or "\n". Returns io.EOF unmodified
// when the connection closes before any header byte arrives.
func readResponseHeader(r *bufio.Reader) (*responseHeader, error) {
	statusLine, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && statusLine == "" {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("proxy: reading status line: %w", err)
	}

	h := &responseHeader{statusLine: statusLine}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("proxy: reading header line: %w", err)
		}
		if line == "\r\n" || line == "\n" {
			h.lines = append(h.lines, line)
			break
		}
		h.lines = append(h.lines, line)
		inspectHeaderLine(h, line)
	}
	return h, nil
}

func inspectHeaderLine(h *responseHeader, line string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return
	}
	name := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])

	switch strings.ToLower(name) {
	case "content-length":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			h.contentLength = n
			h.hasLength = true
		}
	case "transfer-encoding":
		if strings.Contains(strings.ToLower(value), "chunked") {
			h.chunked = true
		}
	case "content-type":
		h.needsRewrite = shouldRewriteContentType(value)
	}
}

// shouldRewriteContentType reports whether a response body is eligible
// for URL rewriting: true for text/*, or any type containing
// xml/json/html, case-insensitive; false otherwise (including an empty
// value, since media streams often omit Content-Type).
func shouldRewriteContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	firstToken := contentType
	if i := strings.IndexByte(firstToken, ';'); i >= 0 {
		firstToken = firstToken[:i]
	}
	firstToken = strings.ToLower(strings.TrimSpace(firstToken))

	if strings.HasPrefix(firstToken, "text/") {
		return true
	}
	return strings.Contains(firstToken, "xml") ||
		strings.Contains(firstToken, "json") ||
		strings.Contains(firstToken, "html")
}

// writeHeader writes the status line and all header lines unmodified.
func writeHeader(w io.Writer, h *responseHeader) error {
	if _, err := io.WriteString(w, h.statusLine); err != nil {
		return err
	}
	for _, line := range h.lines {
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// writeHeaderWithContentLength writes the status line and all header
// lines, replacing any Content-Length line with the canonical
// "Content-Length: N\r\n" form. Every other line, including a blank
// terminator, is passed through unchanged.
func writeHeaderWithContentLength(w io.Writer, h *responseHeader, n int) error {
	if _, err := io.WriteString(w, h.statusLine); err != nil {
		return err
	}
	replaced := false
	for _, line := range h.lines {
		if isContentLengthLine(line) {
			if replaced {
				continue
			}
			if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n", n); err != nil {
				return err
			}
			replaced = true
			continue
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

func isContentLengthLine(line string) bool {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line[:idx]), "content-length")
}

// rewriteBody performs a literal substring replacement, origin_url_base
// -> proxy_url_base, on the body interpreted as lossy UTF-8.
func rewriteBody(body []byte, originBase, proxyBase string) []byte {
	text := string(bytes.ToValidUTF8(body, "�"))
	if !strings.Contains(text, originBase) {
		return []byte(text)
	}
	return []byte(strings.ReplaceAll(text, originBase, proxyBase))
}

// logStatusLine sanitizes a response's status line for logging: filtered
// to printable ASCII or space, truncated to 100 chars, to avoid log
// injection from upstream-controlled bytes.
func logStatusLine(raw string) string {
	raw = strings.TrimRight(raw, "\r\n")
	var b strings.Builder
	for _, r := range raw {
		if r == ' ' || (r > 0x20 && r < 0x7f) {
			b.WriteRune(r)
		}
		if b.Len() >= 100 {
			break
		}
	}
	s := b.String()
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
