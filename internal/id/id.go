package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a random identifier for a stored entity.
func New() string {
	return uuid.NewString()
}

// FormatOperationNumber returns a ledger operation number like "2025-01-001".
func FormatOperationNumber(year, month, seq int) string {
	return fmt.Sprintf("%04d-%02d-%03d", year, month, seq)
}

// OperationNumberPrefix returns the "YYYY-MM-" prefix shared by every
// operation number of the month containing t.
func OperationNumberPrefix(t time.Time) string {
	return fmt.Sprintf("%04d-%02d-", t.Year(), int(t.Month()))
}

// ParseOperationNumber parses "2025-01-001" into year, month, seq.
func ParseOperationNumber(number string) (year, month, seq int, err error) {
	parts := strings.SplitN(number, "-", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid operation number format: %q", number)
	}

	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid year in operation number %q: %w", number, err)
	}

	month, err = strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, 0, fmt.Errorf("invalid month in operation number %q", number)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid sequence in operation number %q: %w", number, err)
	}

	return year, month, seq, nil
}

// NextSeq returns one more than the highest sequence among numbers. Numbers
// that do not parse are ignored.
func NextSeq(numbers []string) int {
	maxSeq := 0
	for _, n := range numbers {
		_, _, seq, err := ParseOperationNumber(n)
		if err != nil {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1
}
