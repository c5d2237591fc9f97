// Package proxy validates provider-agnostic completion requests and forwards
// them to AI vendors.
//
// The package sits between the HTTP handlers and the provider adapters. It
// owns request validation, the single upstream call per request, streaming
// state, and the JSON and SSE envelopes written back to callers.
//
// # Request Flow
//
//  1. The handler reads the body and calls Validator.Validate
//  2. Executor.ExecuteAIRequest (or ExecuteStreamingRequest) checks the key
//     format locally, builds the vendor request through the adapter, and
//     performs exactly one HTTP call
//  3. The vendor reply is normalized to a UnifiedResponse or a Stream of
//     StreamChunk values
//  4. WriteSuccess, WriteError and the SSE writers encode the result
//
// # Streaming
//
// A Stream is pull based. Nothing is read from the vendor until Next is
// called, and each call reads at most one relayed chunk:
//
//	stream, err := executor.ExecuteStreamingRequest(ctx, req)
//	if err != nil {
//	    proxy.WriteError(w, err)
//	    return
//	}
//	defer stream.Close()
//
//	for {
//	    chunk, err := stream.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// A Stream moves through Idle, Connecting and Streaming, and ends in exactly
// one of Completed, Aborted (caller went away) or Errored (vendor failure or
// idle timeout). Every terminal transition closes the upstream body.
//
// # Error Handling
//
// Every failure leaving this package is a *providers.ProxyError. Vendor
// detail is scrubbed of the caller's key before it is attached, and the
// upstream URL is never part of a message.
//
// # Thread Safety
//
// Validator and Executor are safe for concurrent use. A Stream belongs to a
// single request and must not be shared.
package proxy
