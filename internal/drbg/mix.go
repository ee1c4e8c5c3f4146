package drbg

import (
	"encoding/binary"
	"io"
)

// writeField writes a length-prefixed field so adjacent fields cannot be
// shifted into each other.
func writeField(w io.Writer, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	w.Write(n[:])
	w.Write(b)
}
