// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// TripleSetID generates a deterministic fingerprint of an ID-mapped triple
// set, given as flat (head, relation, tail) rows. Two runs over the same
// triples in the same order share the fingerprint.
func TripleSetID(rows [][3]int64) string {
	h := sha256.New()
	var buf [24]byte
	for _, row := range rows {
		binary.BigEndian.PutUint64(buf[0:], uint64(row[0]))
		binary.BigEndian.PutUint64(buf[8:], uint64(row[1]))
		binary.BigEndian.PutUint64(buf[16:], uint64(row[2]))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
