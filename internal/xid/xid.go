// Package xid mints prefixed identifiers such as "sale-1712…" for entities
// and "led-1712…" for ledger entries.
// The nanosecond component keeps IDs roughly creation-ordered; the random
// suffix makes collisions within the same nanosecond a non-issue.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const entropyBytes = 8

func New(prefix string) string {
	stamp := time.Now().UnixNano()
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; the stamp alone
		// stays unique enough for a single-process fallback.
		return fmt.Sprintf("%s-%d", prefix, stamp)
	}
	return fmt.Sprintf("%s-%d-%s", prefix, stamp, hex.EncodeToString(buf))
}
