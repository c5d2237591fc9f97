// Package openai implements the adapter for the OpenAI chat completions wire
// format.
//
// The same adapter serves every vendor that speaks this format, each
// configured by its own providers.ProviderConfig:
//
//	openai    https://api.openai.com/v1/chat/completions
//	deepseek  https://api.deepseek.com/v1/chat/completions
//	groq      https://api.groq.com/openai/v1/chat/completions
//	together  https://api.together.xyz/v1/chat/completions
//
// Streaming uses Server-Sent Events with one JSON object per "data:" line
// and a literal "data: [DONE]" terminator.
//
// # Usage
//
//	cfg, _ := registry.GetConfig("groq")
//	adapter := openai.NewAdapter(cfg)
//	ureq, err := adapter.BuildRequest(req)
package openai
