// Package spendwindow computes the UTC window boundaries and the
// spend(wallet, since) primitive (§4.4) shared by the Rules Engine and
// the Kill Switch.
package spendwindow

import (
	"context"
	"time"

	"github.com/agentwallet/core/internal/application/ports"
	"github.com/agentwallet/core/internal/domain/valueobjects"
	"github.com/google/uuid"
)

// StartOfDay returns 00:00 UTC of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns 00:00 UTC of the Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// StartOfMonth returns 00:00 UTC of day 1 of t's calendar month.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Spend is the spend(wallet, since) primitive: the sum of Completed,
// non-deposit transaction amounts on walletID with createdAt >= since.
func Spend(ctx context.Context, txStore ports.TransactionStore, walletID uuid.UUID, since time.Time) (valueobjects.Money, error) {
	sum, err := txStore.SumCompletedSince(ctx, walletID, since)
	if err != nil {
		return valueobjects.Money{}, err
	}
	return valueobjects.NewMoney(sum)
}
