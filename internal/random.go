// Package internal holds small helpers shared by the engine packages.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
)

// NewNumericCode returns a random code of the given number of decimal digits,
// zero-padded, suitable for SMS and email verification.
func NewNumericCode(digits int) (string, error) {
	if digits <= 0 {
		digits = 6
	}

	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	code := n.String()
	for len(code) < digits {
		code = "0" + code
	}
	return code, nil
}

// HashCode digests a verification code for at-rest storage. Flow state keeps
// only the digest so a leaked record cannot be replayed directly.
func HashCode(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}

// CodeEqual compares a submitted code against a stored digest in constant
// time.
func CodeEqual(code string, digest []byte) bool {
	sum := sha256.Sum256([]byte(code))
	return subtle.ConstantTimeCompare(sum[:], digest) == 1
}
