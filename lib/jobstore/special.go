// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobstore

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultPointsPerKg is the loyalty rate applied to weigh-ins when the
// configuration does not set one.
const DefaultPointsPerKg = 2

// SpecialCollection is an ad hoc weigh-in. Total and Points are
// computed from Weight, UnitPrice, and PointsPerKg on every call.
type SpecialCollection struct {
	ID          string     `json:"id"`
	ClientRef   string     `json:"client_ref"`
	WasteType   string     `json:"waste_type"`
	WeightKg    float64    `json:"weight_kg"`
	UnitPrice   float64    `json:"unit_price"`
	PointsPerKg float64    `json:"points_per_kg"`
	CreatedAt   time.Time  `json:"created_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
}

// Total is weight × unit price.
func (c SpecialCollection) Total() float64 {
	return c.WeightKg * c.UnitPrice
}

// Points is floor(weight × points per kg).
func (c SpecialCollection) Points() int64 {
	return int64(math.Floor(c.WeightKg * c.PointsPerKg))
}

// Validate checks the weigh-in form values.
func (c SpecialCollection) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if c.ClientRef == "" {
		errs = append(errs, errors.New("client reference is required"))
	}
	if c.WasteType == "" {
		errs = append(errs, errors.New("waste type is required"))
	}
	if !nonNegative(c.WeightKg) {
		errs = append(errs, fmt.Errorf("weight must be a finite number >= 0, got %v", c.WeightKg))
	}
	if !nonNegative(c.UnitPrice) {
		errs = append(errs, fmt.Errorf("unit price must be a finite number >= 0, got %v", c.UnitPrice))
	}
	if !nonNegative(c.PointsPerKg) {
		errs = append(errs, fmt.Errorf("points per kg must be a finite number >= 0, got %v", c.PointsPerKg))
	}
	if len(errs) > 0 {
		return fmt.Errorf("jobstore: invalid special collection: %w", errors.Join(errs...))
	}
	return nil
}

func nonNegative(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0) && value >= 0
}
