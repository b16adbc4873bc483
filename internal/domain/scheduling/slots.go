package scheduling

import (
	"math"
	"sort"
	"time"
)

// Slot is a bookable start time.
type Slot struct {
	Start     time.Time `json:"datetime"`
	Label     string    `json:"time"`
	Available bool      `json:"available"`
}

// ComputeSlots lists the free slots of date. Entries not active or not for
// date's weekday are ignored. A candidate is offered when it starts after now
// and no booked appointment intersects [start, start+slot_duration). Times
// are built in date's location.
func ComputeSlots(date time.Time, entries []*ScheduleEntry, now time.Time, booked []*Appointment) []Slot {
	y, m, d := date.Date()
	loc := date.Location()
	day := DayOfWeek(date)

	var slots []Slot
	for _, e := range entries {
		if !e.Active || e.DayOfWeek != day || e.SlotDuration <= 0 {
			continue
		}
		step := time.Duration(e.SlotDuration * float64(time.Minute))
		for offset := e.HourFrom * 60; offset < e.HourTo*60; offset += e.SlotDuration {
			start := time.Date(y, m, d, 0, int(math.Floor(offset)), 0, 0, loc)
			if !start.After(now) {
				continue
			}
			if isBooked(start, start.Add(step), booked) {
				continue
			}
			slots = append(slots, Slot{Start: start, Label: start.Format("15:04"), Available: true})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

func isBooked(start, end time.Time, booked []*Appointment) bool {
	for _, a := range booked {
		switch a.Status {
		case StatusDraft, StatusConfirmed, StatusInProgress:
		default:
			continue
		}
		if a.Intersects(start, end) {
			return true
		}
	}
	return false
}
