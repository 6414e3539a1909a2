// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package seed imports a crew's job schedule from a JSONC file.
//
// A schedule file is a JSON document extended with // line comments,
// /* block comments */, and trailing commas:
//
//	{
//	  // Tuesday north route
//	  "jobs": [
//	    {"id": "job-1", "location": "Depot 4", "address": "12 Mill Rd",
//	     "waste_type": "general", "scheduled_date": "2026-10-14",
//	     "expected_token": "QR-0001", "urgent": true},
//	  ],
//	}
//
// Every imported job starts pending and synced.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/fieldverify/lib/jobstore"
)

// DateLayout is the format of scheduled_date.
const DateLayout = "2006-01-02"

// File is the on-disk schedule.
type File struct {
	Jobs []Entry `json:"jobs"`
}

// Entry is one job as authored.
type Entry struct {
	ID            string `json:"id"`
	Location      string `json:"location"`
	Address       string `json:"address"`
	WasteType     string `json:"waste_type"`
	ScheduledDate string `json:"scheduled_date"`
	ExpectedToken string `json:"expected_token"`
	Urgent        bool   `json:"urgent"`
}

// Parse strips JSONC syntax, decodes, and validates a schedule. Dates
// are interpreted in location.
func Parse(data []byte, location *time.Location) ([]jobstore.Job, error) {
	var file File
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("parsing schedule: %w", err)
	}
	if location == nil {
		location = time.Local
	}

	var errs []error
	seen := make(map[string]bool, len(file.Jobs))
	jobs := make([]jobstore.Job, 0, len(file.Jobs))
	for index, entry := range file.Jobs {
		where := fmt.Sprintf("jobs[%d]", index)
		if entry.ID != "" {
			where = fmt.Sprintf("jobs[%d] (%s)", index, entry.ID)
		}
		if strings.TrimSpace(entry.ID) == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", where))
		} else if seen[entry.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id", where))
		}
		seen[entry.ID] = true
		if entry.ExpectedToken == "" {
			errs = append(errs, fmt.Errorf("%s: expected_token is required", where))
		}
		scheduled, err := time.ParseInLocation(DateLayout, entry.ScheduledDate, location)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: scheduled_date %q is not YYYY-MM-DD", where, entry.ScheduledDate))
		}
		jobs = append(jobs, jobstore.NewJob(
			entry.ID, entry.Location, entry.Address, entry.WasteType,
			entry.ExpectedToken, scheduled, entry.Urgent,
		))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid schedule: %w", errors.Join(errs...))
	}
	return jobs, nil
}

// ReadFile reads and parses a schedule file.
func ReadFile(path string, location *time.Location) ([]jobstore.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	jobs, err := Parse(data, location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}
