package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock is injected into every component that reasons about "now" so
// tests can pin time instead of racing the wall clock.
type Clock interface {
	Now() time.Time
}

// IDGen generates the UUIDv4 identifiers the data model requires for
// every entity's primary key.
type IDGen interface {
	NewID() string
}

// System is the production Clock, backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// UUIDGen is the production IDGen, backed by google/uuid.
type UUIDGen struct{}

func (UUIDGen) NewID() string { return uuid.New().String() }

// Fixed is a test double that always returns the same instant, optionally
// advanced manually between assertions.
type Fixed struct {
	t time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time { return f.t }

func (f *Fixed) Advance(d time.Duration) { f.t = f.t.Add(d) }

// Sequential is a test double IDGen producing predictable, incrementing
// ids instead of random UUIDs.
type Sequential struct {
	prefix string
	n      int
}

func NewSequential(prefix string) *Sequential { return &Sequential{prefix: prefix} }

func (s *Sequential) NewID() string {
	s.n++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.prefix+"-"+itoa(s.n))).String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
