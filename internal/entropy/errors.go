package entropy

import (
	"errors"
	"fmt"
)

// MinSeedBytes is the smallest seed a cryptographic generator accepts (256 bits).
const MinSeedBytes = 32

var (
	// ErrInsufficientEntropy reports seed material shorter than the security threshold.
	ErrInsufficientEntropy = errors.New("insufficient entropy")

	// ErrSourceUnavailable reports an entropy source that could not produce data.
	ErrSourceUnavailable = errors.New("entropy source unavailable")

	// ErrHealthTest reports raw source output rejected by a continuous health test.
	ErrHealthTest = errors.New("entropy health test failed")
)

// InsufficientEntropyError is returned when seed material is too short.
type InsufficientEntropyError struct {
	Got  int
	Want int
}

func (e *InsufficientEntropyError) Error() string {
	return fmt.Sprintf("insufficient entropy: got %d bytes, need at least %d", e.Got, e.Want)
}

func (e *InsufficientEntropyError) Is(target error) bool {
	return target == ErrInsufficientEntropy
}

// SourceUnavailableError is returned when an entropy source fails.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("entropy source %q unavailable", e.Source)
	}
	return fmt.Sprintf("entropy source %q unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// CheckSeed returns an *InsufficientEntropyError if seed is shorter than want.
// A want below MinSeedBytes is raised to MinSeedBytes.
func CheckSeed(seed []byte, want int) error {
	if want < MinSeedBytes {
		want = MinSeedBytes
	}
	if len(seed) < want {
		return &InsufficientEntropyError{Got: len(seed), Want: want}
	}
	return nil
}

func unavailable(source string, err error) error {
	return &SourceUnavailableError{Source: source, Err: err}
}
