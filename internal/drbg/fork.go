package drbg

import "github.com/xtding233/seedpool/internal/entropy"

// Fork seeds a new generator of algorithm alg from SeedBytes of parent
// output. Children of one parent never share a seed, so their streams do not
// overlap; use one child per goroutine or per unit of work.
func Fork(parent Secure, alg Algorithm) (Secure, error) {
	seed := entropy.SeedMaterial(parent.Next(SeedBytes))
	return New(alg, seed)
}
