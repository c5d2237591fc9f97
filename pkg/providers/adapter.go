package providers

import "net/http"

// Adapter translates between the unified shapes and one vendor's wire format.
// Adapters receive only validated requests and never perform I/O.
type Adapter interface {
	// BuildRequest produces the vendor HTTP request for req. When req.Stream
	// is set the request targets the vendor's streaming endpoint.
	BuildRequest(req *ProxyRequest) (*UpstreamRequest, error)

	// ParseResponse converts a 2xx buffered vendor body.
	ParseResponse(body []byte) (*UnifiedResponse, error)

	// ParseStreamChunk converts one SSE event. It returns (nil, nil) for
	// events that carry no content, a chunk with Done set for the vendor's
	// terminal marker, and a *ProxyError for in-band vendor errors.
	ParseStreamChunk(ev *SSEEvent) (*StreamChunk, error)

	// ParseError maps a non-2xx vendor response to the taxonomy.
	ParseError(status int, header http.Header, body []byte) *ProxyError
}
