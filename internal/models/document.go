package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const DocumentSchemaVersion = 1

const (
	DayValueUnset = 0
	DayValueGood  = 1
	DayValueOkay  = 2
	DayValueRough = 3
)

var (
	ErrUnknownSchemaVersion = errors.New("unknown document schema version")
	ErrInvalidMonthLabel    = errors.New("invalid month label")
)

// MonthLabelLayout is the label format stored in CurrentMonthYear, e.g. "March 2024".
const MonthLabelLayout = "January 2006"

type Day struct {
	Day   int `json:"day" bson:"day"`
	Value int `json:"value" bson:"value"`
}

type Week []Day

// ArchivedMonth is an append-only record of a completed month. MonthData is
// never mutated after the month has been archived.
type ArchivedMonth struct {
	MonthYear string `json:"monthAndYear" bson:"monthAndYear"`
	MonthData []Week `json:"monthData" bson:"monthData"`
}

type UserMoodDocument struct {
	SchemaVersion        int             `json:"schemaVersion" bson:"schemaVersion"`
	UserID               string          `json:"userId" bson:"userId"`
	CurrentMonthYear     string          `json:"currentMonthYear" bson:"currentMonthYear"`
	CurrentMonthCalendar []Week          `json:"currentMonthCalendar" bson:"currentMonthCalendar"`
	PreviousMonths       []ArchivedMonth `json:"previousMonths" bson:"previousMonths"`
	LastWriterDeviceID   string          `json:"lastWriterDeviceId,omitempty" bson:"lastWriterDeviceId,omitempty"`
	UpdatedAt            time.Time       `json:"updatedAt" bson:"updatedAt"`
}

func (doc *UserMoodDocument) Clone() *UserMoodDocument {
	if doc == nil {
		return nil
	}

	clone := *doc
	clone.CurrentMonthCalendar = cloneWeeks(doc.CurrentMonthCalendar)
	clone.PreviousMonths = make([]ArchivedMonth, len(doc.PreviousMonths))
	for index, archived := range doc.PreviousMonths {
		clone.PreviousMonths[index] = ArchivedMonth{
			MonthYear: archived.MonthYear,
			MonthData: cloneWeeks(archived.MonthData),
		}
	}
	return &clone
}

func cloneWeeks(weeks []Week) []Week {
	cloned := make([]Week, len(weeks))
	for index, week := range weeks {
		cloned[index] = make(Week, len(week))
		copy(cloned[index], week)
	}
	return cloned
}

// Validate checks the structural invariants of the active calendar: days are
// unique, contiguous from 1, cover the labelled month exactly, and every value
// is within the recorded range.
func (doc *UserMoodDocument) Validate() error {
	if doc.UserID == "" {
		return errors.New("document has no user id")
	}
	if doc.SchemaVersion != DocumentSchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, doc.SchemaVersion)
	}

	monthStart, err := time.Parse(MonthLabelLayout, doc.CurrentMonthYear)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMonthLabel, doc.CurrentMonthYear)
	}
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()

	expectedDay := 1
	for weekIndex, week := range doc.CurrentMonthCalendar {
		if len(week) == 0 || len(week) > 7 {
			return fmt.Errorf("week %d has %d days", weekIndex, len(week))
		}
		for _, day := range week {
			if day.Day != expectedDay {
				return fmt.Errorf("expected day %d, found day %d", expectedDay, day.Day)
			}
			if day.Value < DayValueUnset || day.Value > DayValueRough {
				return fmt.Errorf("day %d has out-of-range value %d", day.Day, day.Value)
			}
			expectedDay++
		}
	}
	if expectedDay-1 != daysInMonth {
		return fmt.Errorf("calendar covers %d days, month %q has %d", expectedDay-1, doc.CurrentMonthYear, daysInMonth)
	}

	return nil
}

// ParseUserMoodDocument decodes and validates a stored document blob.
// Blobs written before schema versioning are accepted as version 1.
func ParseUserMoodDocument(data []byte) (*UserMoodDocument, error) {
	doc := &UserMoodDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode user mood document: %w", err)
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = DocumentSchemaVersion
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate user mood document: %w", err)
	}
	return doc, nil
}
