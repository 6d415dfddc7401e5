package ledger

import (
	"crypto/rand"
)

// Receipt hash format: a 3-character domain prefix followed by 13 characters
// drawn from an unambiguous alphabet (no 0/O/1/I). Stable display strings,
// minted once per commit.
const (
	hashAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	hashLength   = 13
)

// Domain prefixes per operation.
const (
	PrefixStake      = "STK"
	PrefixRefund     = "RFD"
	PrefixSettle     = "STL"
	PrefixDistribute = "DST"
)

// MintHash returns a fresh receipt hash with the given domain prefix.
// Only ledger implementations mint hashes; the engine core passes them
// through unmodified.
func MintHash(prefix string) string {
	buf := make([]byte, hashLength)
	rand.Read(buf)
	out := make([]byte, 0, len(prefix)+hashLength)
	out = append(out, prefix...)
	for _, b := range buf {
		out = append(out, hashAlphabet[int(b)%len(hashAlphabet)])
	}
	return string(out)
}
