package scheduling

import (
	"context"
	"errors"
	"time"

	"signbridge-server/internal/apperr"
	"signbridge-server/internal/models"
)

// AvailabilityCalculator derives a provider's bookable slots for a day from
// the appointments already on their calendar. It never writes.
type AvailabilityCalculator struct {
	store Store
}

// NewAvailabilityCalculator creates a calculator reading from store.
func NewAvailabilityCalculator(store Store) *AvailabilityCalculator {
	return &AvailabilityCalculator{store: store}
}

// Slots returns the working-day grid for date in date's location. An id
// that does not belong to a provider has no availability and yields an
// empty list rather than an error.
func (c *AvailabilityCalculator) Slots(ctx context.Context, providerID string, date time.Time) ([]Slot, error) {
	if providerID == "" {
		return []Slot{}, nil
	}

	provider, err := c.store.FindUser(ctx, providerID)
	if errors.Is(err, apperr.ErrNotFound) {
		return []Slot{}, nil
	}
	if err != nil {
		return nil, err
	}
	if provider.Role != models.RoleProvider {
		return []Slot{}, nil
	}

	from, to := dayBounds(date)
	booked, err := c.store.ListBookedIntervals(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return BuildSlots(date, booked), nil
}
