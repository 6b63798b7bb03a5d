package orders

import "time"

// Clock supplies the calendar day used in the order key.
type Clock interface {
	Today() time.Time
}

// BusinessClock cuts days at midnight in Loc.
type BusinessClock struct {
	Loc *time.Location
	Now func() time.Time
}

func NewBusinessClock(loc *time.Location) BusinessClock {
	return BusinessClock{Loc: loc, Now: time.Now}
}

// Today returns the current business date as midnight UTC so it compares
// and encodes as a plain date.
func (c BusinessClock) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Loc
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
