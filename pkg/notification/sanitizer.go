// Package notification delivers incident updates to Slack. Sanitize runs
// over every outbound message first: incident Context/Plan data ultimately
// comes from Kubernetes annotations, pod logs, and source-control commit
// messages — untrusted text that must never carry a credential into a
// shared channel.
package notification

import (
	"regexp"
	"strings"
)

// sensitivePatterns is the outbound redaction list. Anything matching is
// replaced with [REDACTED] before a message leaves the process. Defense in
// depth only — it does not replace RBAC or secret management.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)-----BEGIN [^-]+-----.*?-----END [^-]+-----`),
	regexp.MustCompile(`\b(AKIA|ASIA|AROA|ABIA|ACCA)[0-9A-Z]{16}\b`),
	regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*[A-Za-z0-9/+=]{40}`),
	regexp.MustCompile(`\bghp_[a-zA-Z0-9]{36}\b`),
	regexp.MustCompile(`\bgithub_pat_[a-zA-Z0-9_]{82}\b`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{10,}\.eyJ[a-zA-Z0-9_-]{10,}\.[a-zA-Z0-9_-]{10,}`),
	regexp.MustCompile(`\bxox[baprs]-[0-9a-zA-Z]{10,48}\b`),
	regexp.MustCompile(`"private_key"\s*:\s*"[^"]{50,}"`),
	regexp.MustCompile(`(?i)(bearer|token|authorization)\s+[a-zA-Z0-9._\-+/]{40,}`),
	regexp.MustCompile(`(?i)(token|password|passwd|secret|api[_-]?key|authorization|credential|private[_-]?key)\s*[:=]\s*[^\s,;'"\x00-\x1f]{3,}`),
}

var combinedSensitiveRE = combinePatterns(sensitivePatterns)

func combinePatterns(patterns []*regexp.Regexp) *regexp.Regexp {
	parts := make([]string, len(patterns))
	for i, re := range patterns {
		parts[i] = "(?:" + re.String() + ")"
	}
	return regexp.MustCompile(strings.Join(parts, "|"))
}

// Sanitize redacts every sensitive-looking substring in s. It never panics:
// a malformed regex match (there shouldn't be one, but the caller is sending
// to an external service) falls back to returning a fixed placeholder rather
// than risk emitting a half-redacted secret.
func Sanitize(s string) (sanitized string) {
	defer func() {
		if recover() != nil {
			sanitized = "[message withheld: sanitization failed]"
		}
	}()
	return combinedSensitiveRE.ReplaceAllString(s, "[REDACTED]")
}
