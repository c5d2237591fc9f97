// Package tokens estimates token counts when a vendor does not report usage.
//
// Streaming responses from several vendors carry no usage block unless it is
// explicitly requested, and some OpenAI-compatible gateways omit it even for
// buffered calls. The executor fills the gap with an Estimator and marks the
// resulting usage as estimated.
//
// Two estimators are provided:
//
//   - TiktokenEstimator encodes text with the BPE encoding matching the model
//     family (o200k_base for gpt-4o and o-series, cl100k_base otherwise).
//   - SimpleEstimator divides character count by a per-model ratio.
//
// TiktokenEstimator never loads encodings while estimating. LoadEstimator
// fetches them once at startup under a timeout; until an encoding is
// available, or if it never loads, SimpleEstimator answers instead. A request
// therefore never waits on a BPE download and makes no outbound call besides
// its vendor call.
//
//	est, _ := tokens.New(&cfg.Tokens)
//	tokens.LoadEstimator(ctx, est, cfg.Tokens.LoadTimeout)
package tokens
