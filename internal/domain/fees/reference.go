package fees

import (
	"time"

	"github.com/google/uuid"
)

// AcademicYear scopes pricing and bills. At most one year is active at a time.
type AcademicYear struct {
	ID        uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
}

// Contains reports whether t falls within the academic year (inclusive)
func (y *AcademicYear) Contains(t time.Time) bool {
	d := truncateToDay(t)
	return !d.Before(truncateToDay(y.StartDate)) && !d.After(truncateToDay(y.EndDate))
}

// Grade is the pricing dimension students belong to
type Grade struct {
	ID   uuid.UUID
	Name string
}

// Student is the billed party
type Student struct {
	ID              uuid.UUID
	Name            string
	AdmissionNumber string
	GradeID         uuid.UUID
}

// FeeCategory names a kind of charge, e.g. Tuition or Transport
type FeeCategory struct {
	ID          uuid.UUID
	Name        string
	Description string
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
