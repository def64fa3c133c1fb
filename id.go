package mailgate

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newConnectionID returns an opaque, lexically sortable 12-character
// connection tag derived from a ULID. It is used for log correlation and
// as the basis of the Received header's trace token.
func newConnectionID() string {
	idMu.Lock()
	defer idMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy)
	s := id.String()
	return s[len(s)-12:]
}
