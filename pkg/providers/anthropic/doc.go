// Package anthropic implements the adapter for the Anthropic Messages API.
//
// Differences from the OpenAI format handled here:
//
//   - the key travels in x-api-key and every request carries
//     anthropic-version: 2023-06-01
//   - system messages are lifted into the top-level "system" field
//   - max_tokens is mandatory (4096 when the caller omits it)
//   - consecutive messages with the same role are merged, since the API
//     requires strictly alternating turns
//   - streaming uses named SSE events (content_block_delta, message_delta,
//     message_stop, error)
//
// Stop reasons end_turn and stop_sequence normalize to "stop", max_tokens
// to "length" and tool_use to "tool_calls".
package anthropic
