package ics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"weekplan/internal/fsutil"
	appLog "weekplan/internal/log"
	"weekplan/internal/model"
)

const productID = "-//weekplan//weekly schedule//EN"

// uidNamespace scopes the name-based UIDs of exported events.
var uidNamespace = uuid.MustParse("6f1d4f0e-3b7a-4f43-9a35-2c9a3c1c7d52")

// Exporter writes a selected schedule as an .ics file.
type Exporter struct {
	Path        string
	SlotMinutes int
	// IncludeCommitments also exports courses and fixed events. By default
	// only generated events are written, since the others already live in
	// the user's calendar.
	IncludeCommitments bool

	now func() time.Time
}

// NewExporter returns an Exporter writing to path.
func NewExporter(path string, slotMinutes int) *Exporter {
	return &Exporter{Path: path, SlotMinutes: slotMinutes, now: time.Now}
}

// PersistSelectedSchedule implements the schedule store contract.
func (e *Exporter) PersistSelectedSchedule(ctx context.Context, week model.Week, s model.Schedule) error {
	if e.Path == "" {
		return errors.New("ics export: path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body := e.Render(week, s)
	if err := fsutil.WriteFileAtomic(e.Path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("ics export: %w", err)
	}
	appLog.Info("ics export written", "path", e.Path, "week_start", week.Start.Format("2006-01-02"), "events", len(s.Events))
	return nil
}

// Render serializes the schedule. Event UIDs are derived from the week,
// the request and the occurrence number, so re-exporting the same
// selection updates events in place in subscribing calendars.
func (e *Exporter) Render(week model.Week, s model.Schedule) string {
	slotMinutes := e.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = 60
	}
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	stamp := now()

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("Week of " + week.Start.Format("Jan 2, 2006"))

	seen := make(map[string]int)
	for _, ev := range s.Events {
		if !ev.Kind.Movable() && !e.IncludeCommitments {
			continue
		}
		key := ev.Kind.String() + "/" + ev.RequestID
		seen[key]++

		name := week.Start.Format("2006-01-02") + "/" + key + "/" + strconv.Itoa(seen[key])
		vev := cal.AddEvent(uuid.NewSHA1(uidNamespace, []byte(name)).String())
		vev.SetDtStampTime(stamp)

		day := week.Date(ev.Day)
		vev.SetStartAt(wallClock(day, ev.StartSlot*slotMinutes))
		vev.SetEndAt(wallClock(day, ev.EndSlot()*slotMinutes))

		title := ev.Title
		if title == "" {
			title = ev.RequestID
		}
		vev.SetSummary(title)
		vev.SetProperty(ical.ComponentPropertyCategories, ev.Kind.String())
	}
	return cal.Serialize()
}

// wallClock returns day at the given minute of the local day, so DST days
// keep their wall-clock slot times.
func wallClock(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minute, 0, 0, day.Location())
}
