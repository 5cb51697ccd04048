package model

import "fmt"

// MalformedRecordError reports an input record that could not be
// normalized. The record is skipped; the rest of the batch is kept.
type MalformedRecordError struct {
	Kind     Kind
	SourceID string
	Field    string
	Value    string
	Err      error
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s record %q: %v", e.Kind, e.SourceID, e.Err)
	}
	return fmt.Sprintf("malformed %s record %q: %s %q: %v", e.Kind, e.SourceID, e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// UnsatisfiableRequestError reports one occurrence of a flexible request
// for which no free slot existed. Occurrence is 1-based. Displaced is set
// when the week had room before other requests were placed.
type UnsatisfiableRequestError struct {
	RequestID     string
	Title         string
	Priority      Priority
	Occurrence    int
	DurationSlots int
	Displaced     bool
}

func (e *UnsatisfiableRequestError) Error() string {
	msg := fmt.Sprintf("no free slot for request %q occurrence %d (%d slots)", e.RequestID, e.Occurrence, e.DurationSlots)
	if e.Displaced {
		msg += ", taken by earlier placements"
	}
	return msg
}

// SourceError reports a commitment source that could not be read. Its
// events are missing from the generation, so placements may overlap them.
type SourceError struct {
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("commitment source %q unavailable: %v", e.SourceID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
