package drbg

import (
	"sync"

	"github.com/xtding233/seedpool/internal/entropy"
)

// Locked serializes access to a secure generator so it can be shared
// between goroutines.
type Locked struct {
	mu  sync.Mutex
	gen Secure
}

var _ Secure = (*Locked)(nil)

// NewLocked wraps gen. The caller must stop using gen directly.
func NewLocked(gen Secure) *Locked {
	return &Locked{gen: gen}
}

func (l *Locked) Algorithm() Algorithm { return l.gen.Algorithm() }

func (l *Locked) secure() {}

func (l *Locked) Next(n int) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen.Next(n)
}

func (l *Locked) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen.Read(p)
}

func (l *Locked) Refresh(material entropy.SeedMaterial) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen.Refresh(material)
}
