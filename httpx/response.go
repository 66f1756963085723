package httpx

// NewResponse builds an HTTP/1.1 response message. A nil body yields a
// head-only message.
func NewResponse(code uint16, header HeaderMap, body []byte) *Message {
	if header == nil {
		header = HeaderMap{}
	}
	m := &Message{Head: &ResponseHead{Status: StatusOf(code), Version: HTTP11, Header: header}}
	if body != nil {
		m.Body = &BodyChunk{Bytes: body}
	}
	return m
}

// Text builds a 200 text/plain response.
func Text(body string) *Message {
	return NewResponse(200, HeaderMap{"Content-Type": {"text/plain"}}, []byte(body))
}

// StatusCode returns the response status code, or 0 for a request message.
func (m *Message) StatusCode() uint16 {
	if rh, ok := m.Response(); ok {
		return rh.Status.Code
	}
	return 0
}
