package order

import "time"

// SlotWindow returns the one-hour capacity window [start, end) that t falls
// into, in t's location. The start is derived from the instant so the window
// always contains t, including the repeated hour at a daylight-saving fall-back.
func SlotWindow(t time.Time) (time.Time, time.Time) {
	start := t.Add(-(time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())))
	return start, start.Add(time.Hour)
}

// windowKey packs the window start into the second int4 of a Postgres
// advisory lock key.
func windowKey(start time.Time) int32 {
	return int32(start.Unix() / 3600)
}
