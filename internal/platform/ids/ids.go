// Package ids generates prefixed ULID identifiers. The prefix makes it
// obvious in logs and documents which entity an id belongs to.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixOrder     = "ord"
	PrefixUsage     = "use"
	PrefixDiscount  = "dsc"
	PrefixPromotion = "prm"
	PrefixPayment   = "pay"
)

// Generator issues monotonic ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	clock   func() time.Time
}

// NewGenerator constructs a generator backed by crypto/rand entropy.
func NewGenerator(clock func() time.Time) *Generator {
	if clock == nil {
		clock = time.Now
	}
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		clock:   clock,
	}
}

// New returns a fresh ULID with the given entity prefix, e.g. "ord_01J...".
func (g *Generator) New(prefix string) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(g.clock()), g.entropy)
	g.mu.Unlock()
	if prefix == "" {
		return id.String()
	}
	return prefix + "_" + id.String()
}

// Func binds the generator to a fixed prefix for services that take a plain
// id factory.
func (g *Generator) Func(prefix string) func() string {
	return func() string { return g.New(prefix) }
}

// Timestamp extracts the embedded creation time from a prefixed id.
func Timestamp(id string) (time.Time, bool) {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		id = id[i+1:]
	}
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
