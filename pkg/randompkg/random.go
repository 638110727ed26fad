// Package randompkg provides functionality for generating random application items.
package randompkg

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyz"
	digits   = "0123456789"
)

// Intn is a shortcut for generating a random integer between 0 and max using crypto/rand.
func Intn(max int) int64 {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(err)
	}

	return nBig.Int64()
}

// IntBetween generates a random integer in [min, max].
func IntBetween(min, max int) int {
	return min + int(Intn(max-min+1))
}

// String generates a random string of length n.
func String(n int) string {
	return fromAlphabet(alphabet, n)
}

func fromAlphabet(a string, n int) string {
	var sb strings.Builder

	k := len(a)

	for i := 0; i < n; i++ {
		c := a[Intn(k)]

		_ = sb.WriteByte(c) // The returned err is always nil.
	}

	return sb.String()
}

// Owner generates a random owner name.
func Owner() string {
	return String(6)
}

// Phone generates a random phone number.
func Phone() string {
	return "+2547" + fromAlphabet(digits, 8)
}

// Address generates a random street address.
func Address() string {
	return fmt.Sprintf("%d %s street", IntBetween(1, 999), String(8))
}

// MoneyAmountBetween generates a random amount of money between min and max with cents.
func MoneyAmountBetween(min, max int64) decimal.Decimal {
	cents := min*100 + Intn(int((max-min)*100)+1)
	return decimal.New(cents, -2)
}

// Frequency generates a random payment frequency.
func Frequency() string {
	frequencies := []string{"daily", "weekly", "biweekly", "monthly"}
	return frequencies[Intn(len(frequencies))]
}

// Email generates a random email.
func Email() string {
	return fmt.Sprintf("%s@email.com", String(10))
}
