package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CardNumberLength is the issued PAN length, check digit included.
const CardNumberLength = 16

// luhnCheckDigit computes the check digit that makes body+digit pass the
// Luhn checksum. body must be digits only.
func luhnCheckDigit(body string) int {
	sum := 0
	// The check digit will be appended, so positions alternate starting
	// with a doubled digit at the rightmost body position.
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// ValidCardNumber reports whether s is a well-formed card number with a
// correct Luhn check digit.
func ValidCardNumber(s string) bool {
	if len(s) != CardNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	body, check := s[:len(s)-1], int(s[len(s)-1]-'0')
	return luhnCheckDigit(body) == check
}

// GenerateCardNumber issues a new card number under the given BIN prefix,
// filling the body with cryptographically random digits and appending the
// Luhn check digit. Uniqueness is enforced by the card store's unique
// index; the issuer retries on conflict.
func GenerateCardNumber(prefix string) (string, error) {
	bodyLen := CardNumberLength - 1 - len(prefix)
	if bodyLen <= 0 {
		return "", fmt.Errorf("card prefix %q too long", prefix)
	}

	body := make([]byte, bodyLen)
	for i := range body {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate card number: %w", err)
		}
		body[i] = byte('0' + n.Int64())
	}

	full := prefix + string(body)
	return full + fmt.Sprintf("%d", luhnCheckDigit(full)), nil
}
