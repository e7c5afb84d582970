package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// NewCode generates a numeric one-time code of the given length, uniformly
// selected from [10^(digits-1), 10^digits - 1]. The lower bound excludes
// leading zeros so the code round-trips through integer handling unchanged.
func NewCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	low := int64(1)
	for i := 1; i < digits; i++ {
		low *= 10
	}
	span := low*10 - low // count of values in [low, 10*low-1]

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(low+n.Int64(), 10), nil
}
