// Package google implements the adapter for the Gemini generateContent API.
//
// The key is passed in the query string (?key=...), so URLs built here must
// never be logged. Buffered calls use
//
//	POST /v1beta/models/{model}:generateContent?key=K
//
// and streaming calls use
//
//	POST /v1beta/models/{model}:streamGenerateContent?alt=sse&key=K
//
// where each SSE data line is a complete GenerateContentResponse holding the
// next slice of text. The stream has no terminator event; it ends when the
// vendor closes the connection.
package google
