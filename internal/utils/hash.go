package utils

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

var ErrEmptyAlphabet = errors.New("empty alphabet")

// RandomString draws length symbols uniformly from alphabet using crypto/rand.
func RandomString(alphabet string, length int) (string, error) {
	if alphabet == "" {
		return "", ErrEmptyAlphabet
	}
	max := big.NewInt(int64(len(alphabet)))
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[n.Int64()])
	}
	return builder.String(), nil
}

// NormalizeCode strips separators users tend to type and upper-cases the rest.
func NormalizeCode(code string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "\t", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(code)))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
