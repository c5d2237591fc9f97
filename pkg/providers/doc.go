// Package providers holds the vendor-neutral request and response shapes,
// the provider config registry, the error taxonomy and the adapter contract
// shared by every vendor translation.
//
// # Overview
//
// A caller submits one ProxyRequest naming a provider id. The Registry maps
// that id to a static ProviderConfig, and the Adapter registered for it
// translates the request into the vendor's wire format and the vendor's reply
// back into a UnifiedResponse or a sequence of StreamChunk values.
//
// Supported provider ids:
//
//	openai     OpenAI chat completions (bearer auth)
//	anthropic  Anthropic messages API (x-api-key, anthropic-version)
//	google     Gemini generateContent (key in query string)
//	deepseek   OpenAI wire format, api.deepseek.com
//	groq       OpenAI wire format, api.groq.com/openai
//	together   OpenAI wire format, api.together.xyz
//
// # Errors
//
// Every failure that leaves this package, or any adapter, is a *ProxyError
// carrying a Code from the shared taxonomy. Use AsProxyError to classify an
// arbitrary error at a boundary:
//
//	perr := providers.AsProxyError(err)
//	w.WriteHeader(perr.StatusCode)
//
// # Transport
//
// Transport performs exactly one HTTP round trip per call. It never retries;
// callers decide whether a failed request is safe to repeat.
package providers
