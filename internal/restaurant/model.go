package restaurant

import (
	"database/sql/driver"
	"fmt"
	"time"
)

type Restaurant struct {
	ID        uint
	Name      string
	OpenTime  *TimeOfDay
	CloseTime *TimeOfDay
	IsDeleted bool
}

// HoursSet reports whether both ends of the operating window are configured.
func (r *Restaurant) HoursSet() bool {
	return r.OpenTime != nil && r.CloseTime != nil
}

// IsOpenAt checks t against the operating window. Both bounds are inclusive.
// An open time at or after the close time denotes a window that wraps midnight.
func (r *Restaurant) IsOpenAt(t TimeOfDay) bool {
	if !r.HoursSet() {
		return false
	}
	opens, closes := *r.OpenTime, *r.CloseTime
	if opens < closes {
		return t >= opens && t <= closes
	}
	return t >= opens || t <= closes
}

// TimeOfDay is the offset from midnight.
type TimeOfDay time.Duration

const day = TimeOfDay(24 * time.Hour)

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Of returns the wall-clock time of day of t in its own location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Of(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// Scan reads a Postgres TIME column. lib/pq hands TIME values over as
// time.Time on 0000-01-01; text protocols may deliver strings.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = Of(v)
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

func (t *TimeOfDay) scanString(s string) error {
	if len(s) > 8 {
		s = s[:8] // drop fractional seconds
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	if t < 0 || t >= day {
		return nil, fmt.Errorf("time of day out of range: %s", time.Duration(t))
	}
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60), nil
}
