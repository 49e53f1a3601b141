package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dlna-proxy/dlnaproxy/internal/applog"
)

const passThroughChunkSize = 8 * 1024

// URLRewrite names the literal origin/proxy base-URL pair substituted
// into rewrite-eligible response bodies.
type URLRewrite struct {
	OriginBase string
	ProxyBase  string
}

// forwardResponses reads successive HTTP responses from origin off r and
// writes them to w, rewriting rewrite-eligible bodies and streaming
// everything else. It returns nil on a clean EOF between responses, and
// a non-nil error for anything that must terminate the connection
// (including a rewrite-eligible chunked body overrunning RewriteBudget,
// which fails the connection rather than falling back to pass-through; a
// fixed-length body declared over the budget is passed through instead).
func forwardResponses(ctx context.Context, w io.Writer, r *bufio.Reader, rw URLRewrite) error {
	for {
		h, err := readResponseHeader(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		applog.Trace(ctx, "proxy response", "status", logStatusLine(h.statusLine))

		if !h.hasLength && !h.chunked {
			if err := writeHeader(w, h); err != nil {
				return err
			}
			_, err := io.Copy(w, r)
			return err
		}

		switch {
		case h.chunked:
			if err := forwardChunkedResponse(w, r, h, rw); err != nil {
				return err
			}
		default:
			if err := forwardFixedLengthResponse(w, r, h, rw); err != nil {
				return err
			}
		}
	}
}

func forwardFixedLengthResponse(w io.Writer, r *bufio.Reader, h *responseHeader, rw URLRewrite) error {
	if h.needsRewrite && h.contentLength <= RewriteBudget {
		body := make([]byte, h.contentLength)
		if _, err := io.ReadFull(r, body); err != nil {
			return fmt.Errorf("proxy: reading response body: %w", err)
		}
		rewritten := rewriteBody(body, rw.OriginBase, rw.ProxyBase)
		if err := writeHeaderWithContentLength(w, h, len(rewritten)); err != nil {
			return err
		}
		_, err := w.Write(rewritten)
		return err
	}

	if err := writeHeader(w, h); err != nil {
		return err
	}
	return passThroughFixedLength(w, r, h.contentLength)
}

func forwardChunkedResponse(w io.Writer, r *bufio.Reader, h *responseHeader, rw URLRewrite) error {
	if h.needsRewrite {
		body, err := ReadChunkedBody(r)
		if err != nil {
			return err
		}
		rewritten := rewriteBody(body, rw.OriginBase, rw.ProxyBase)
		if err := writeHeader(w, h); err != nil {
			return err
		}
		return WriteChunkedBody(w, rewritten)
	}

	if err := writeHeader(w, h); err != nil {
		return err
	}
	return PassThroughChunkedBody(w, r)
}

func passThroughFixedLength(w io.Writer, r *bufio.Reader, n int64) error {
	buf := make([]byte, passThroughChunkSize)
	remaining := n
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		read, err := io.ReadFull(r, buf[:chunk])
		if err != nil {
			return fmt.Errorf("proxy: streaming response body: %w", err)
		}
		if _, err := w.Write(buf[:read]); err != nil {
			return err
		}
		remaining -= int64(read)
	}
	return nil
}
