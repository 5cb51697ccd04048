package ics

import (
	"sort"
	"time"

	appLog "weekplan/internal/log"
	"weekplan/internal/model"
)

// ToRecords converts parsed VEVENTs into fixed-event records. It handles:
//
//   - duplicate base events per UID, keeping the highest SEQUENCE
//   - RECURRENCE-ID overrides, which remove the overridden instance from
//     the base series (as an EXDATE) and become standalone records
//   - STATUS:CANCELLED, on either a base event or an override
//
// Recurrence expansion itself is left to normalization.
func ToRecords(events []ParsedEvent) []model.FixedEventRecord {
	baseByUID := make(map[string]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	order := make([]string, 0)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		prev, ok := baseByUID[ev.UID]
		if !ok {
			order = append(order, ev.UID)
		}
		if !ok || ev.Seq >= prev.Seq {
			baseByUID[ev.UID] = ev
		}
	}

	out := make([]model.FixedEventRecord, 0, len(events))
	for _, uid := range order {
		base := baseByUID[uid]
		overrides := overridesByUID[uid]
		delete(overridesByUID, uid)

		if base.Cancelled {
			appLog.Debug("ics: skipping cancelled event", "uid", uid)
			continue
		}

		rec := record(base, uid)
		for _, ov := range overrides {
			rec.ExDates = append(rec.ExDates, ov.Recurrence.In(base.Start.Location()))
			if ov.Cancelled {
				continue
			}
			o := record(ov, uid+"@"+ov.Recurrence.UTC().Format("20060102T150405Z"))
			o.RRule = ""
			o.ExDates = nil
			out = append(out, o)
		}
		out = append(out, rec)
	}

	// Overrides whose series is not in this feed still occupy their own time.
	orphans := make([]string, 0, len(overridesByUID))
	for uid := range overridesByUID {
		orphans = append(orphans, uid)
	}
	sort.Strings(orphans)
	for _, uid := range orphans {
		for _, ov := range overridesByUID[uid] {
			if ov.Cancelled {
				continue
			}
			o := record(ov, uid+"@"+ov.Recurrence.UTC().Format("20060102T150405Z"))
			o.RRule = ""
			o.ExDates = nil
			out = append(out, o)
		}
	}
	return out
}

func record(ev ParsedEvent, id string) model.FixedEventRecord {
	if ev.Source.ID != "" {
		id = ev.Source.ID + "/" + id
	}
	end := ev.End
	if ev.AllDay && !end.After(ev.Start) {
		end = ev.Start.Add(24 * time.Hour)
	}
	return model.FixedEventRecord{
		ID:          id,
		Title:       ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		AllDay:      ev.AllDay,
		Start:       ev.Start,
		End:         end,
		RRule:       ev.RawRRule,
		ExDates:     append([]time.Time(nil), ev.ExDates...),
	}
}
