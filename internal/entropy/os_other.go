//go:build !linux

package entropy

import (
	"context"
	"crypto/rand"
	"io"
)

type osSource struct{}

// NewOSSource returns the operating system CSPRNG through crypto/rand.
func NewOSSource() Source { return osSource{} }

func (osSource) Name() string { return "crypto/rand" }

func (osSource) ReadEntropy(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable("crypto/rand", err)
	}
	if _, err := io.ReadFull(rand.Reader, p); err != nil {
		return unavailable("crypto/rand", err)
	}
	return nil
}
