package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Custom keys use the "conduit.*" namespace.
const (
	AttrProvider = "conduit.provider"
	AttrModel    = "conduit.model"
	AttrStream   = "conduit.stream"

	AttrRequestID = "conduit.request_id"

	AttrStatusCode = "http.response.status_code"
	AttrErrorCode  = "conduit.error.code"

	AttrTokensPrompt     = "conduit.tokens.prompt"
	AttrTokensCompletion = "conduit.tokens.completion"
	AttrTokensEstimated  = "conduit.tokens.estimated"

	AttrStreamOutcome = "conduit.stream.outcome"
	AttrStreamChunks  = "conduit.stream.chunks"
)

// ProviderAttributes returns the attributes set when an upstream span starts.
func ProviderAttributes(provider, model string, stream bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
		attribute.Bool(AttrStream, stream),
	}
}

// SetStatusCode records the vendor's HTTP status.
func SetStatusCode(span trace.Span, status int) {
	span.SetAttributes(attribute.Int(AttrStatusCode, status))
}

// SetErrorCode records a failure classified into the error taxonomy.
func SetErrorCode(span trace.Span, code string, err error) {
	span.SetAttributes(attribute.String(AttrErrorCode, code))
	SetError(span, err)
}

// SetTokenAttributes records token counts.
func SetTokenAttributes(span trace.Span, prompt, completion int, estimated bool) {
	span.SetAttributes(
		attribute.Int(AttrTokensPrompt, prompt),
		attribute.Int(AttrTokensCompletion, completion),
		attribute.Bool(AttrTokensEstimated, estimated),
	)
}

// SetStreamOutcome records how a stream ended and how many chunks it relayed.
func SetStreamOutcome(span trace.Span, outcome string, chunks int) {
	span.SetAttributes(
		attribute.String(AttrStreamOutcome, outcome),
		attribute.Int(AttrStreamChunks, chunks),
	)
}
