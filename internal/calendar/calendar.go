package calendar

import (
	"time"

	"github.com/hazelgrove/moodsync/internal/models"
)

// MonthLabel names the calendar month a document tracks, e.g. "March 2024".
func MonthLabel(now time.Time) string {
	return now.Format(models.MonthLabelLayout)
}

// GenerateMonthCalendar builds an all-unset calendar for the month containing
// now. Days are sliced into groups of seven in calendar order starting from
// day 1, regardless of which weekday the month starts on; the final group may
// hold fewer than seven days.
func GenerateMonthCalendar(now time.Time) []models.Week {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()

	weeks := make([]models.Week, 0, (daysInMonth+6)/7)
	week := make(models.Week, 0, 7)
	for day := 1; day <= daysInMonth; day++ {
		week = append(week, models.Day{Day: day, Value: models.DayValueUnset})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = make(models.Week, 0, 7)
		}
	}
	if len(week) > 0 {
		weeks = append(weeks, week)
	}
	return weeks
}

// NewDocument creates the first document for a user: an all-unset calendar for
// the current month with an empty archive.
func NewDocument(userID string, now time.Time) *models.UserMoodDocument {
	return &models.UserMoodDocument{
		SchemaVersion:        models.DocumentSchemaVersion,
		UserID:               userID,
		CurrentMonthYear:     MonthLabel(now),
		CurrentMonthCalendar: GenerateMonthCalendar(now),
		PreviousMonths:       []models.ArchivedMonth{},
		UpdatedAt:            now,
	}
}

// InitializeOrUpdate returns a document guaranteed to track the current month.
// A nil document yields a fresh one. A document labelled with an earlier month
// has its calendar archived under the old label and replaced with a fresh
// all-unset month; a single archive entry is created no matter how many months
// have passed since the document was last touched. A document already on the
// current month is returned as-is. The second result reports whether the
// document changed.
func InitializeOrUpdate(doc *models.UserMoodDocument, userID string, now time.Time) (*models.UserMoodDocument, bool) {
	if doc == nil {
		return NewDocument(userID, now), true
	}

	currentLabel := MonthLabel(now)
	if doc.CurrentMonthYear == currentLabel {
		return doc, false
	}

	rolled := doc.Clone()
	rolled.PreviousMonths = append(rolled.PreviousMonths, models.ArchivedMonth{
		MonthYear: doc.CurrentMonthYear,
		MonthData: rolled.CurrentMonthCalendar,
	})
	rolled.CurrentMonthYear = currentLabel
	rolled.CurrentMonthCalendar = GenerateMonthCalendar(now)
	rolled.UpdatedAt = now
	return rolled, true
}
