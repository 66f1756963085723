package httpx

// NewRequest builds an HTTP/1.1 request message. A nil body yields a
// head-only message.
func NewRequest(method Method, uri string, header HeaderMap, body []byte) *Message {
	if header == nil {
		header = HeaderMap{}
	}
	m := &Message{Head: &RequestHead{Method: method, URI: uri, Version: HTTP11, Header: header}}
	if body != nil {
		m.Body = &BodyChunk{Bytes: body}
	}
	return m
}

// URI returns the request target, or "" for a response message.
func (m *Message) URI() string {
	if rh, ok := m.Request(); ok {
		return rh.URI
	}
	return ""
}
