package facts

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idLock    sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-sortable, globally unique fact id. Safe for
// concurrent use; ids minted by one process are strictly increasing.
func NewID() string {
	idLock.Lock()
	defer idLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}
