// Package xid mints opaque identifiers for request tracing. The HTTP
// middleware stamps one on every request that arrives without an
// X-Request-ID header so log lines can be correlated.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a prefixed identifier built from the current time and eight
// random bytes. The timestamp alone is the fallback if the random source
// fails; uniqueness matters less than traceability here.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
