package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"livestock-collar-backend/internal/apperr"
)

var (
	codeRe = regexp.MustCompile(`^[A-Z]{1,4}-[0-9]{1,5}$`)
	baseRe = regexp.MustCompile(`^[A-Z]{1,4}$`)
	seqRe  = regexp.MustCompile(`-(\d+)$`)
)

// MaxSequence is the highest number a collar code can carry.
const MaxSequence = 99999

// NormalizeCode trims and upper-cases a raw collar code and validates it against
// the code grammar: one to four letters, a dash, one to five digits.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return "", apperr.Validation("collar code is required")
	}
	if !codeRe.MatchString(code) {
		return "", apperr.Validation("invalid collar code %q: expected 1-4 letters, a dash and 1-5 digits", raw)
	}
	return code, nil
}

// SequenceOf returns the numeric suffix of a code, or 0 when it has none.
func SequenceOf(code string) int {
	m := seqRe.FindStringSubmatch(code)
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// ValidBase normalizes a batch prefix (the letters before the dash).
func ValidBase(raw string) (string, error) {
	base := strings.ToUpper(strings.TrimSpace(raw))
	if !baseRe.MatchString(base) {
		return "", apperr.Validation("invalid collar code base %q: expected 1-4 letters", raw)
	}
	return base, nil
}

// NextCodes returns n fresh codes for base, continuing after the highest
// sequence found among existing.
func NextCodes(base string, existing []string, n int) ([]string, error) {
	if n <= 0 {
		return nil, apperr.Validation("quantity must be a positive integer")
	}
	last := 0
	prefix := base + "-"
	for _, code := range existing {
		if !strings.HasPrefix(code, prefix) {
			continue
		}
		if seq := SequenceOf(code); seq > last {
			last = seq
		}
	}
	if last+n > MaxSequence {
		return nil, apperr.Validation("base %q has no room for %d more collars", base, n)
	}
	codes := make([]string, 0, n)
	for i := last + 1; i <= last+n; i++ {
		codes = append(codes, fmt.Sprintf("%s-%d", base, i))
	}
	return codes, nil
}
