// Package fracindex generates fractional-index sort keys: opaque base62
// strings where KeyBetween(a, b) yields a key strictly between a and b.
// Keys never end in the smallest digit, so there is always room for another
// insertion between any two adjacent keys.
package fracindex

import (
	"strings"

	"github.com/pkg/errors"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var (
	ErrOrder   = errors.New("fracindex: left bound is not below right bound")
	ErrBadKey  = errors.New("fracindex: malformed order key")
	ErrNoRoom  = errors.New("fracindex: cannot move past the smallest integer part")
	errOverrun = errors.New("fracindex: cannot increment the largest integer part")
)

// KeyBetween returns a key strictly between a and b. An empty string stands
// for an absent bound: KeyBetween("", "") mints the first key, KeyBetween(a,
// "") a key after a, KeyBetween("", b) a key before b.
func KeyBetween(a, b string) (string, error) {
	if a != "" {
		if err := validateKey(a); err != nil {
			return "", err
		}
	}
	if b != "" {
		if err := validateKey(b); err != nil {
			return "", err
		}
	}
	if a != "" && b != "" && a >= b {
		return "", errors.Wrapf(ErrOrder, "%q >= %q", a, b)
	}

	if a == "" {
		if b == "" {
			return "a0", nil
		}
		ib := integerPart(b)
		fb := b[len(ib):]
		if ib == "A"+strings.Repeat("0", 26) {
			mid, err := midpoint("", fb)
			return ib + mid, err
		}
		if ib < b {
			return ib, nil
		}
		res, err := decrementInteger(ib)
		if err != nil {
			return "", err
		}
		return res, nil
	}

	if b == "" {
		ia := integerPart(a)
		fa := a[len(ia):]
		i, err := incrementInteger(ia)
		if err == nil {
			return i, nil
		}
		mid, merr := midpoint(fa, "")
		return ia + mid, merr
	}

	ia := integerPart(a)
	fa := a[len(ia):]
	ib := integerPart(b)
	fb := b[len(ib):]
	if ia == ib {
		mid, err := midpoint(fa, fb)
		return ia + mid, err
	}
	i, err := incrementInteger(ia)
	if err != nil {
		return "", err
	}
	if i < b {
		return i, nil
	}
	mid, err := midpoint(fa, "")
	return ia + mid, err
}

// midpoint returns a fraction strictly between a and b. b == "" means
// "strictly greater than a with no upper bound below the next integer".
func midpoint(a, b string) (string, error) {
	if b != "" && a >= b {
		return "", errors.Wrapf(ErrOrder, "fraction %q >= %q", a, b)
	}
	if strings.HasSuffix(a, "0") || strings.HasSuffix(b, "0") {
		return "", errors.Wrap(ErrBadKey, "trailing zero")
	}
	if b != "" {
		// the left bound is compared padded with the smallest digit, so a
		// shared prefix like ("", "0V") is still factored out; without the
		// padding the digit branch below could emit a trailing zero
		n := 0
		for n < len(b) {
			ca := byte('0')
			if n < len(a) {
				ca = a[n]
			}
			if ca != b[n] {
				break
			}
			n++
		}
		if n > 0 {
			var atail string
			if n < len(a) {
				atail = a[n:]
			}
			rest, err := midpoint(atail, b[n:])
			return b[:n] + rest, err
		}
	}

	da := 0
	if a != "" {
		da = strings.IndexByte(digits, a[0])
	}
	db := len(digits)
	if b != "" {
		db = strings.IndexByte(digits, b[0])
	}
	if db-da > 1 {
		mid := (da + db + 1) / 2
		return string(digits[mid]), nil
	}

	// consecutive digits
	if len(b) > 1 {
		return b[:1], nil
	}
	var atail string
	if a != "" {
		atail = a[1:]
	}
	rest, err := midpoint(atail, "")
	return string(digits[da]) + rest, err
}

func integerLength(head byte) int {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2
	}
	return 0
}

func integerPart(key string) string {
	n := integerLength(key[0])
	if n > len(key) {
		return key
	}
	return key[:n]
}

func validateInteger(i string) error {
	n := integerLength(i[0])
	if n == 0 || n != len(i) {
		return errors.Wrapf(ErrBadKey, "integer part %q", i)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.Wrap(ErrBadKey, "empty key")
	}
	i := integerPart(key)
	if err := validateInteger(i); err != nil {
		return err
	}
	frac := key[len(i):]
	if strings.HasSuffix(frac, "0") {
		return errors.Wrapf(ErrBadKey, "trailing zero in %q", key)
	}
	for k := 0; k < len(key); k++ {
		if strings.IndexByte(digits, key[k]) < 0 {
			return errors.Wrapf(ErrBadKey, "digit %q in %q", key[k], key)
		}
	}
	return nil
}

func incrementInteger(i string) (string, error) {
	if err := validateInteger(i); err != nil {
		return "", err
	}
	head := i[0]
	digs := []byte(i[1:])
	for k := len(digs) - 1; k >= 0; k-- {
		d := strings.IndexByte(digits, digs[k]) + 1
		if d == len(digits) {
			digs[k] = '0'
			continue
		}
		digs[k] = digits[d]
		return string(head) + string(digs), nil
	}
	// carried out of every digit
	switch {
	case head == 'Z':
		return "a0", nil
	case head == 'z':
		return "", errOverrun
	}
	h := head + 1
	if h > 'a' {
		digs = append(digs, '0')
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), nil
}

func decrementInteger(i string) (string, error) {
	if err := validateInteger(i); err != nil {
		return "", err
	}
	head := i[0]
	digs := []byte(i[1:])
	for k := len(digs) - 1; k >= 0; k-- {
		d := strings.IndexByte(digits, digs[k]) - 1
		if d < 0 {
			digs[k] = digits[len(digits)-1]
			continue
		}
		digs[k] = digits[d]
		return string(head) + string(digs), nil
	}
	// borrowed out of every digit
	switch {
	case head == 'a':
		return "Z" + string(digits[len(digits)-1]), nil
	case head == 'A':
		return "", ErrNoRoom
	}
	h := head - 1
	if h < 'Z' {
		digs = append(digs, digits[len(digits)-1])
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), nil
}
