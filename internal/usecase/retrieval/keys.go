package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/talentdex/talentdex/internal/domain"
)

// queryKey derives a stable cache key from the collection, the normalized
// question, top_k, and the canonical filter fingerprint. The collection is
// part of the key so identical questions against different collections
// never collide.
func queryKey(collection, normalizedQuestion string, topK int, filter *domain.Filter) string {
	payload := fmt.Sprintf("%s\x00%s\x00%d\x00%s", collection, normalizedQuestion, topK, filter.Fingerprint())
	h := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(h[:])
}
