package domain

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

// The 8-symbol alphabet keeps codes easy to read aloud and lets a random
// byte map onto it without modulo bias. 8^10 combinations is a small space
// for an identifier, so uniqueness is enforced by the store's primary key
// and a bounded regenerate-and-retry in the service, never assumed here.
const (
	codeAlphabet = "abcd1234"
	codeLength   = 10
)

// ShortCode is the public identifier of a clip. It is opaque: any string
// parsed from a path parameter is a valid ShortCode, codes outside the
// generation alphabet simply miss on lookup.
type ShortCode string

func NewShortCode() (ShortCode, error) {
	var buf [codeLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", errors.Wrap(err, "rand fail")
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return ShortCode(buf[:]), nil
}

func ShortCodeFromString(s string) ShortCode {
	return ShortCode(s)
}

func (c ShortCode) String() string {
	return string(c)
}
