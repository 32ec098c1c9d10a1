package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintLabelPrefix namespaces lookout's dedup labels in the
// tracker so they never collide with human-applied labels.
const fingerprintLabelPrefix = "lookout-fp-"

// Fingerprint derives the stable deduplication key for a failure from
// its name and job name. Message text is deliberately excluded: it
// varies run to run (timestamps, addresses) and would split one failure
// across many issues.
func Fingerprint(failureName, jobName string) string {
	h := sha256.New()
	h.Write([]byte(jobName))
	h.Write([]byte{0})
	h.Write([]byte(failureName))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// FingerprintLabel returns the tracker label carrying a fingerprint.
func FingerprintLabel(fingerprint string) string {
	return fingerprintLabelPrefix + fingerprint
}
