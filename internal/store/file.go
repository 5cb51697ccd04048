// Package store keeps the user's records and requests in a YAML data file
// and persists the selected schedule next to it.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"weekplan/internal/fsutil"
	appLog "weekplan/internal/log"
	"weekplan/internal/model"
)

// Data is the content of the data file.
type Data struct {
	model.Records `yaml:",inline"`
	Requests      []model.FlexibleEventRequest `yaml:"requests"`
}

// Unsatisfied is the stored form of an unsatisfiable request.
type Unsatisfied struct {
	RequestID     string         `yaml:"request_id" json:"request_id"`
	Title         string         `yaml:"title,omitempty" json:"title,omitempty"`
	Priority      model.Priority `yaml:"priority" json:"priority"`
	Occurrence    int            `yaml:"occurrence" json:"occurrence"`
	DurationSlots int            `yaml:"duration_slots" json:"duration_slots"`
	Displaced     bool           `yaml:"displaced,omitempty" json:"displaced,omitempty"`
}

// Selection is the content of the selected-schedule file.
type Selection struct {
	WeekStart   string              `yaml:"week_start" json:"week_start"`
	SelectedAt  time.Time           `yaml:"selected_at" json:"selected_at"`
	Index       int                 `yaml:"index" json:"index"`
	Events      []model.PlacedEvent `yaml:"events" json:"events"`
	Unsatisfied []Unsatisfied       `yaml:"unsatisfied,omitempty" json:"unsatisfied,omitempty"`
}

// File is a YAML-backed source of records and requests, and a store for
// the selected schedule. It is safe for concurrent use.
type File struct {
	dataPath     string
	selectedPath string

	mu sync.Mutex
}

// NewFile returns a File. selectedPath may be empty when selections are
// persisted elsewhere.
func NewFile(dataPath, selectedPath string) *File {
	return &File{dataPath: dataPath, selectedPath: selectedPath}
}

// Load reads the data file. On first run, when the file does not exist,
// an empty data file is created and returned.
func (f *File) Load() (*Data, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() (*Data, error) {
	if f.dataPath == "" {
		return nil, errors.New("store: data path is empty")
	}

	raw, err := os.ReadFile(f.dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d := &Data{}
			if err := f.save(d); err != nil {
				return d, err
			}
			appLog.Info("store: created empty data file", "path", f.dataPath)
			return d, nil
		}
		return nil, err
	}

	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("store: %s: %w", f.dataPath, err)
	}
	d.fillIDs()
	return &d, nil
}

// Save writes the data file atomically with 0600 permissions.
func (f *File) Save(d *Data) error {
	if d == nil {
		return errors.New("store: data is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(d)
}

func (f *File) save(d *Data) error {
	out, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.dataPath, out, 0o600)
}

// fillIDs gives records without an ID a positional one so that diagnostics
// and tie-breaks stay stable.
func (d *Data) fillIDs() {
	for i := range d.Courses {
		if d.Courses[i].ID == "" {
			d.Courses[i].ID = "course-" + strconv.Itoa(i+1)
		}
	}
	for i := range d.FixedEvents {
		if d.FixedEvents[i].ID == "" {
			d.FixedEvents[i].ID = "event-" + strconv.Itoa(i+1)
		}
	}
	for i := range d.Requests {
		if d.Requests[i].ID == "" {
			d.Requests[i].ID = "request-" + strconv.Itoa(i+1)
		}
	}
}

// FetchCommitments returns the course and fixed-event records.
func (f *File) FetchCommitments(ctx context.Context) (model.Records, error) {
	if err := ctx.Err(); err != nil {
		return model.Records{}, err
	}
	d, err := f.Load()
	if err != nil {
		return model.Records{}, err
	}
	return d.Records, nil
}

// FetchFlexibleRequests returns the flexible event requests.
func (f *File) FetchFlexibleRequests(ctx context.Context) ([]model.FlexibleEventRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := f.Load()
	if err != nil {
		return nil, err
	}
	return d.Requests, nil
}

// PersistSelectedSchedule writes the selection file.
func (f *File) PersistSelectedSchedule(ctx context.Context, week model.Week, s model.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.selectedPath == "" {
		return errors.New("store: selected path is empty")
	}

	sel := Selection{
		WeekStart:  week.Start.Format("2006-01-02"),
		SelectedAt: time.Now().UTC().Truncate(time.Second),
		Index:      s.Index,
		Events:     s.Events,
	}
	for _, u := range s.Unsatisfied {
		sel.Unsatisfied = append(sel.Unsatisfied, Unsatisfied{
			RequestID:     u.RequestID,
			Title:         u.Title,
			Priority:      u.Priority,
			Occurrence:    u.Occurrence,
			DurationSlots: u.DurationSlots,
			Displaced:     u.Displaced,
		})
	}

	out, err := yaml.Marshal(&sel)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := fsutil.WriteFileAtomic(f.selectedPath, out, 0o600); err != nil {
		return fmt.Errorf("store: persist selection: %w", err)
	}
	appLog.Info("store: selection saved", "path", f.selectedPath, "week_start", sel.WeekStart, "index", sel.Index, "events", len(sel.Events))
	return nil
}

// LoadSelection reads the last persisted selection.
func (f *File) LoadSelection() (*Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.selectedPath)
	if err != nil {
		return nil, err
	}
	var sel Selection
	if err := yaml.Unmarshal(raw, &sel); err != nil {
		return nil, fmt.Errorf("store: %s: %w", f.selectedPath, err)
	}
	return &sel, nil
}
