// Package identity generates synthetic patient identities for load probes.
package identity

import (
	"crypto/rand"
	"fmt"
)

const (
	// DefaultPhonePrefix yields phones 15500001000, 15500001001, ...
	DefaultPhonePrefix = "1550000"
	DefaultPassword    = "testpass123"

	firstSuffix  = 1000
	randomDigits = 4
)

var digits = []byte("0123456789")

// Patient is a throwaway patient account used by a probe run.
type Patient struct {
	Index    int
	Name     string
	Phone    string
	Password string
}

// Synthetic returns the i-th identity for a phone prefix. The mapping is
// stable so a rerun can log into accounts left over from an earlier run.
func Synthetic(prefix string, i int) Patient {
	if prefix == "" {
		prefix = DefaultPhonePrefix
	}
	return Patient{
		Index:    i,
		Name:     fmt.Sprintf("TestUser%d", i),
		Phone:    fmt.Sprintf("%s%d", prefix, firstSuffix+i),
		Password: DefaultPassword,
	}
}

// RandomPrefix returns a fresh 7-digit phone prefix ("155" plus four random
// digits) for runs that must not collide with earlier accounts.
func RandomPrefix() (string, error) {
	b := make([]byte, randomDigits)
	randomBytes := make([]byte, randomDigits)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = digits[int(randomBytes[i])%len(digits)]
	}
	return "155" + string(b), nil
}
