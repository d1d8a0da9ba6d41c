package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// numericSuffix strips trailing pod-template hash / replica suffixes (e.g.
// "bad-image-app-7d9f8b6c9-xk2lp" -> "bad-image-app") so that alerts for
// different replicas of the same rollout collapse to the same signature.
var numericSuffix = regexp.MustCompile(`(-[0-9a-f]{5,10})+(-[a-z0-9]{5})?$`)

// Fingerprint computes the deterministic dedup key described in spec.md §3
// and §4.7: a hash over source, service, and a normalized signature derived
// from the alert's resource name and title. Two alerts describing the same
// underlying problem on the same service — even across pod restarts that
// change the resource's generated suffix — collapse to one fingerprint.
func Fingerprint(a Alert) string {
	sig := normalizeSignature(a)
	h := sha256.New()
	h.Write([]byte(string(a.Source)))
	h.Write([]byte{0})
	h.Write([]byte(a.Service))
	h.Write([]byte{0})
	h.Write([]byte(sig))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeSignature(a Alert) string {
	resource := numericSuffix.ReplaceAllString(a.Resource, "")
	title := strings.ToLower(strings.TrimSpace(a.Title))
	title = strings.Join(strings.Fields(title), " ")
	if resource == "" {
		return title
	}
	return resource + "|" + title
}
