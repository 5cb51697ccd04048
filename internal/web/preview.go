package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"weekplan/internal/layout"
	appLog "weekplan/internal/log"
	"weekplan/internal/model"
)

//go:embed templates/preview.html.tmpl
var templateFS embed.FS

var previewTemplate = template.Must(template.ParseFS(templateFS, "templates/preview.html.tmpl"))

// kindColors are the block colours of the preview page.
var kindColors = map[model.Kind]string{
	model.KindCourse:        "#2e7d32",
	model.KindFixedEvent:    "#c62828",
	model.KindNonFixedEvent: "#6a1b9a",
}

type previewData struct {
	Title       string
	Summary     string
	Warnings    []string
	Width       float64
	Height      float64
	Gutter      float64
	ColumnWidth float64
	RowHeight   float64
	Days        []previewDay
	Axis        []previewAxisLine
	Events      []previewEvent
}

type previewDay struct {
	Left  float64
	Label string
}

type previewAxisLine struct {
	Top   float64
	Label string
}

type previewEvent struct {
	Top    float64
	Left   float64
	Width  float64
	Height float64
	Color  string
	Kind   string
	Title  string
	Time   string
}

func newPreviewData(set model.CandidateSet, sch model.Schedule, l layout.Layout, p layout.Params) previewData {
	week, slotMinutes := set.Week, set.SlotMinutes
	d := previewData{
		Title:       fmt.Sprintf("Week of %s, option %d", week.Start.Format("Jan 2, 2006"), sch.Index+1),
		Summary:     sch.Summary(),
		Width:       p.ViewportWidth,
		Height:      l.Height,
		Gutter:      p.HorizontalPadding,
		ColumnWidth: l.ColumnWidth,
		RowHeight:   p.RowHeight,
	}
	for _, u := range set.Unavailable {
		d.Warnings = append(d.Warnings, fmt.Sprintf("Calendar %q could not be loaded; its events are not shown.", u.SourceID))
	}
	for day := range model.DaysPerWeek {
		d.Days = append(d.Days, previewDay{
			Left:  float64(day) * l.ColumnWidth,
			Label: week.Date(day).Format("Mon 1/2"),
		})
	}
	for i, label := range l.AxisLabels {
		d.Axis = append(d.Axis, previewAxisLine{Top: float64(i) * p.RowHeight, Label: label})
	}
	for _, ev := range l.Events {
		d.Events = append(d.Events, previewEvent{
			Top:    ev.Top,
			Left:   ev.Left,
			Width:  ev.Width,
			Height: ev.Height,
			Color:  kindColors[ev.Kind],
			Kind:   ev.Kind.String(),
			Title:  ev.Title,
			Time:   clockRange(ev.StartSlot*slotMinutes, ev.EndSlot()*slotMinutes),
		})
	}
	return d
}

// clockRange formats two minute offsets as "9:00 AM - 10:30 AM".
func clockRange(start, end int) string {
	return model.FormatClock(start) + " - " + model.FormatClock(end)
}

// handlePreview renders one candidate as a standalone page. The root
// element carries data-ready="true" once rendered, which the capture
// step waits for.
//
// GET /preview/{index}?width=&row=&lines=
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	p, err := s.layoutParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.current(r.Context())
	if err != nil {
		appLog.Error("preview: generation failed", err)
		writeError(w, http.StatusInternalServerError, "failed to generate candidates")
		return
	}
	l, err := s.planner.Layout(c.set, index, p)
	if err != nil {
		writePlannerError(w, err)
		return
	}

	var buf bytes.Buffer
	data := newPreviewData(c.set, c.set.Schedules[index], l, p)
	if err := previewTemplate.Execute(&buf, data); err != nil {
		appLog.Error("preview: template failed", err, "index", index)
		writeError(w, http.StatusInternalServerError, "failed to render preview")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
