package http1

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// WriteHead writes a start line, the headers and the blank line that ends
// the head. Keys are written in sorted order with Content-Length last so the
// output is deterministic; keys that are not valid field names are skipped.
func WriteHead(w io.Writer, startLine string, hdr map[string][]string) error {
	if _, err := fmt.Fprintf(w, "%s\r\n", startLine); err != nil {
		return err
	}
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		if k == "Content-Length" || !httpguts.ValidHeaderFieldName(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if _, ok := hdr["Content-Length"]; ok {
		keys = append(keys, "Content-Length")
	}
	for _, k := range keys {
		vv := make([]string, len(hdr[k]))
		for i, v := range hdr[k] {
			vv[i] = sanitizeHeaderValue(v)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, strings.Join(vv, ", ")); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// WriteStatusOnly writes a bodiless, headerless HTTP/1.1 response.
func WriteStatusOnly(w io.Writer, status int, reason string) error {
	if reason == "" {
		reason = ReasonPhrase(status)
	}
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n\r\n", status, reason)
	return err
}

func ReasonPhrase(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 411:
		return "Length Required"
	case 413:
		return "Content Too Large"
	case 415:
		return "Unsupported Media Type"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 503:
		return "Service Unavailable"
	case 505:
		return "HTTP Version Not Supported"
	default:
		return ""
	}
}

func sanitizeHeaderValue(v string) string {
	if v == "" {
		return v
	}
	// Remove CR/LF and other control chars except HTAB
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == '\r' || c == '\n' || c == 0x7f {
			continue
		}
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
