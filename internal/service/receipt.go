package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	appErrors "github.com/noah-isme/sma-billing-api/pkg/errors"
)

type receiptCounter interface {
	Next(ctx context.Context, schoolID int64, year int) (int64, error)
	EnsureAtLeast(ctx context.Context, schoolID int64, year int, value int64) error
}

var receiptPattern = regexp.MustCompile(`^REC-(\d{4})-(\d{4,})$`)

// FormatReceiptNumber renders REC-{year}-{NNNN}. Sequences past 9999 widen instead of wrapping.
func FormatReceiptNumber(year int, seq int64) string {
	return fmt.Sprintf("REC-%d-%04d", year, seq)
}

// parseReceiptSequence extracts the sequence of a receipt issued in year.
func parseReceiptSequence(receipt string, year int) (int64, bool) {
	m := receiptPattern.FindStringSubmatch(receipt)
	if m == nil || m[1] != strconv.Itoa(year) {
		return 0, false
	}
	seq, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// allocateReceipt returns the receipt for a payment inside the caller's transaction.
// An explicit receipt in the generated format pushes the counter past it so it is never reissued.
func allocateReceipt(ctx context.Context, counter receiptCounter, schoolID int64, year int, explicit string) (string, error) {
	if explicit != "" {
		if seq, ok := parseReceiptSequence(explicit, year); ok {
			if err := counter.EnsureAtLeast(ctx, schoolID, year, seq); err != nil {
				return "", appErrors.Internal(err, "failed to reserve receipt number")
			}
		}
		return explicit, nil
	}
	seq, err := counter.Next(ctx, schoolID, year)
	if err != nil {
		return "", appErrors.Internal(err, "failed to allocate receipt number")
	}
	return FormatReceiptNumber(year, seq), nil
}
