// Package httpx is a small HTTP/1.x framing engine and one-request-per-
// connection routing server.
//
// A message is a head frame (RequestHead or ResponseHead) optionally
// followed by one BodyChunk. ParseMessage turns bytes into a Message and
// Serialize turns it back, computing Content-Length and compressing the
// body when the head declares Content-Encoding gzip or deflate.
//
// Header names are case-sensitive and a repeated header line replaces the
// previous one. Only Content-Length framing is understood; chunked
// transfer-encoding and keep-alive are not supported.
//
// Quick start (server):
//
//	s := httpx.NewServer("127.0.0.1", 4221)
//	s.HandleFunc(httpx.GET, "/echo/", func(ctx context.Context, req *httpx.Message) (*httpx.Message, error) {
//	    return httpx.Text(strings.TrimPrefix(req.URI(), "/echo/")), nil
//	})
//	if err := s.ListenAndServe(); err != nil { log.Fatal(err) }
//
// Routes are matched longest prefix first. A handler returning a
// *RequestError answers with its status; any other error answers 500.
// Responses to requests that list gzip or deflate in Accept-Encoding are
// compressed with the server's Compressor.
package httpx
