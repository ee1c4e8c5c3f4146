//go:build linux

package entropy

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

// getrandom(2) returns at most 32 MiB per call; smaller chunks keep context
// checks responsive.
const getrandomChunk = 1 << 16

type osSource struct{}

// NewOSSource returns the kernel CSPRNG via getrandom(2). Calls block until
// the kernel pool has been initialized.
func NewOSSource() Source { return osSource{} }

func (osSource) Name() string { return "getrandom" }

func (osSource) ReadEntropy(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return unavailable("getrandom", err)
		}
		chunk := p
		if len(chunk) > getrandomChunk {
			chunk = chunk[:getrandomChunk]
		}
		n, err := unix.Getrandom(chunk, 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return unavailable("getrandom", err)
		}
		if n <= 0 {
			return unavailable("getrandom", errors.New("short read"))
		}
		p = p[n:]
	}
	return nil
}
