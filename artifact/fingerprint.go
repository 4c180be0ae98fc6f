package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Fingerprint derives the deterministic cache key for an artifact from the
// originating message id and variant flags (e.g. "short", "podcast").
// Variant order does not matter.
func Fingerprint(messageID string, variants ...string) string {
	sorted := append([]string(nil), variants...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(messageID))
	for _, v := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}
