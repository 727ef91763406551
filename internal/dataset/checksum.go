package dataset

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the dataset content checksum for an ordered list of
// instance ids: the hex sha256 of the ids joined by newlines. The server
// asserts this value in the manifest; the client recomputes it over the ids
// it actually received and refuses the manifest on mismatch.
func Fingerprint(ids []string) string {
	h := sha256.New()
	for i, id := range ids {
		if i > 0 {
			h.Write([]byte{'\n'})
		}
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}
