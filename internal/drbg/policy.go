package drbg

import (
	"fmt"
	"strings"

	"github.com/xtding233/seedpool/internal/entropy"
)

const (
	// DefaultReseedBytes forces a reseed after 1 GiB of output.
	DefaultReseedBytes uint64 = 1 << 30
	// DefaultReseedRequests forces a reseed after 2^20 requests.
	DefaultReseedRequests uint64 = 1 << 20
)

// Policy bounds how much a Reseeder produces between reseeds. Both limits
// sit far below the birthday bound of every secure construction here.
type Policy struct {
	ReseedBytes    uint64
	ReseedRequests uint64
	// MinSeedBytes is the least seed material accepted at seeding and
	// refresh. It can raise entropy.MinSeedBytes, never lower it.
	MinSeedBytes int
}

// DefaultPolicy returns the built-in limits.
func DefaultPolicy() Policy {
	return Policy{
		ReseedBytes:    DefaultReseedBytes,
		ReseedRequests: DefaultReseedRequests,
		MinSeedBytes:   entropy.MinSeedBytes,
	}
}

// Validate checks that every limit is set and sane.
func (p Policy) Validate() error {
	var errs []string
	if p.ReseedBytes == 0 {
		errs = append(errs, "reseed bytes must be > 0")
	}
	if p.ReseedRequests == 0 {
		errs = append(errs, "reseed requests must be > 0")
	}
	if p.MinSeedBytes < entropy.MinSeedBytes {
		errs = append(errs, fmt.Sprintf("min seed bytes must be >= %d", entropy.MinSeedBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid policy: %s", strings.Join(errs, "; "))
	}
	return nil
}

// seedBytes is how much material one seeding draws.
func (p Policy) seedBytes() int {
	return max(SeedBytes, p.MinSeedBytes)
}
