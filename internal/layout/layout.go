// Package layout converts a schedule into the pixel geometry of a weekly
// calendar view with an evenly divided hour axis.
package layout

import (
	"fmt"
	"math"

	"weekplan/internal/model"
)

const (
	DefaultAxisLineCount = 6
	defaultCenterHour    = 12
	hoursPerDay          = 24
)

// Params describe the rendering surface.
type Params struct {
	ViewportWidth float64 `json:"viewport_width" yaml:"viewport_width"`
	RowHeight     float64 `json:"row_height" yaml:"row_height"`
	AxisLineCount int     `json:"axis_lines" yaml:"axis_lines"`

	HorizontalPadding float64 `json:"horizontal_padding" yaml:"horizontal_padding"`
	BorderAdjustment  float64 `json:"border_adjustment" yaml:"border_adjustment"`
	BorderInset       float64 `json:"border_inset" yaml:"border_inset"`

	// SlotMinutes is the granularity the events were placed with.
	SlotMinutes int `json:"slot_minutes" yaml:"-"`
}

// LayoutError reports an unusable rendering configuration.
type LayoutError struct {
	Field string
	Value float64
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("layout: %s must be positive, got %v", e.Field, e.Value)
}

// Event is a schedule entry with its pixel geometry.
type Event struct {
	model.PlacedEvent
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Layout is the geometry of one schedule.
type Layout struct {
	EarliestHour int      `json:"earliest_hour"`
	LatestHour   int      `json:"latest_hour"`
	Interval     int      `json:"interval"`
	AxisHours    []int    `json:"axis_hours"`
	AxisLabels   []string `json:"axis_labels"`
	ColumnWidth  float64  `json:"column_width"`
	Height       float64  `json:"height"`
	Events       []Event  `json:"events"`
}

func (p Params) validate() error {
	switch {
	case p.ViewportWidth <= 0:
		return &LayoutError{Field: "viewport width", Value: p.ViewportWidth}
	case p.RowHeight <= 0:
		return &LayoutError{Field: "row height", Value: p.RowHeight}
	case p.AxisLineCount <= 0:
		return &LayoutError{Field: "axis line count", Value: float64(p.AxisLineCount)}
	case p.columnWidth() <= 0:
		return &LayoutError{Field: "column width", Value: p.columnWidth()}
	}
	return nil
}

func (p Params) columnWidth() float64 {
	return (p.ViewportWidth - p.HorizontalPadding) / model.DaysPerWeek
}

// Calculate lays out events. A zero SlotMinutes is taken as one hour.
func Calculate(events []model.PlacedEvent, p Params) (Layout, error) {
	if p.SlotMinutes <= 0 {
		p.SlotMinutes = 60
	}
	if err := p.validate(); err != nil {
		return Layout{}, err
	}

	earliest, latest := Bounds(events, p.SlotMinutes)
	earliest, latest = Expand(earliest, latest, p.AxisLineCount)
	interval := (latest - earliest) / p.AxisLineCount

	l := Layout{
		EarliestHour: earliest,
		LatestHour:   latest,
		Interval:     interval,
		ColumnWidth:  p.columnWidth(),
		Height:       float64(p.AxisLineCount) * p.RowHeight,
		Events:       make([]Event, 0, len(events)),
	}
	for i := 0; i <= p.AxisLineCount; i++ {
		h := earliest + i*interval
		l.AxisHours = append(l.AxisHours, h)
		l.AxisLabels = append(l.AxisLabels, Label(h))
	}

	perHour := p.RowHeight / float64(interval)
	for _, ev := range events {
		start := slotHours(ev.StartSlot, p.SlotMinutes)
		dur := slotHours(ev.DurationSlots, p.SlotMinutes)

		height := math.Max(dur*perHour-p.BorderAdjustment, 0)
		top := (start-float64(earliest))*perHour + p.BorderAdjustment
		top = clamp(top, 0, l.Height)
		if top+height > l.Height {
			height = l.Height - top
		}

		l.Events = append(l.Events, Event{
			PlacedEvent: ev,
			Top:         top,
			Left:        float64(ev.Day) * l.ColumnWidth,
			Width:       math.Max(l.ColumnWidth-p.BorderInset, 0),
			Height:      height,
		})
	}
	return l, nil
}

// Bounds returns the whole hours covering every event, or 12..12 when
// there are none.
func Bounds(events []model.PlacedEvent, slotMinutes int) (earliest, latest int) {
	if len(events) == 0 {
		return defaultCenterHour, defaultCenterHour
	}
	earliest, latest = hoursPerDay, 0
	for _, ev := range events {
		s := int(math.Floor(slotHours(ev.StartSlot, slotMinutes)))
		e := int(math.Ceil(slotHours(ev.EndSlot(), slotMinutes)))
		earliest = min(earliest, s)
		latest = max(latest, e)
	}
	return earliest, latest
}

// Expand widens [earliest, latest] one hour at a time, alternating between
// the start and the end, until the span is a positive multiple of lines.
// The start never goes below midnight; the end only passes 24 when the
// start cannot move.
func Expand(earliest, latest, lines int) (int, int) {
	for step := 0; latest-earliest <= 0 || (latest-earliest)%lines != 0; step++ {
		if step%2 == 0 {
			if earliest > 0 {
				earliest--
			} else {
				latest++
			}
			continue
		}
		switch {
		case latest < hoursPerDay:
			latest++
		case earliest > 0:
			earliest--
		default:
			latest++
		}
	}
	return earliest, latest
}

// Label formats an axis hour on a 12-hour clock, e.g. "9 AM" or "3 PM".
func Label(hour int) string {
	h := ((hour % hoursPerDay) + hoursPerDay) % hoursPerDay
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d %s", h, suffix)
}

func slotHours(slots, slotMinutes int) float64 {
	return float64(slots*slotMinutes) / 60
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
