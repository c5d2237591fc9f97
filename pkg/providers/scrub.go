package providers

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// secretPatterns match vendor key shapes that may be echoed back in error
// messages, e.g. "Incorrect API key provided: sk-abc...".
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]+`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9_\-*]+`),
	regexp.MustCompile(`\bgsk_[A-Za-z0-9]+`),
	regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]+`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
	regexp.MustCompile(`([?&]key=)[^&\s"]+`),
}

// ScrubSecret removes apiKey and anything shaped like a vendor key from s.
func ScrubSecret(s, apiKey string) string {
	if s == "" {
		return s
	}
	if len(apiKey) >= minKeyLength {
		s = strings.ReplaceAll(s, apiKey, redacted)
	}
	for _, p := range secretPatterns {
		if p.NumSubexp() > 0 {
			s = p.ReplaceAllString(s, "${1}"+redacted)
			continue
		}
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

// truncateDetail caps vendor detail so large HTML error pages are not relayed.
func truncateDetail(s string) string {
	const maxDetail = 512
	if len(s) > maxDetail {
		return s[:maxDetail] + "..."
	}
	return s
}

// Detail prepares a vendor message for ProxyError.ProviderDetail.
func Detail(s string) string {
	return truncateDetail(strings.TrimSpace(s))
}
