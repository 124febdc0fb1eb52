// Package models defines the wire and storage types shared by the API
// surface, the query compiler and the stores. Every type marshals its
// identifier as the public "id" field; internal store identifiers never
// leave this package unrenamed.
package models

import "time"

// EventOption is a single name/value annotation on an event. Option names
// are unique within an event.
type EventOption struct {
	Name  string `json:"event_option_name"`
	Value string `json:"event_option_value"`
}

// Event is a timestamped logged observation.
type Event struct {
	ID       string        `json:"id"`
	Author   string        `json:"event_author"`
	TS       time.Time     `json:"ts"`
	Value    string        `json:"event_value"`
	Options  []EventOption `json:"event_options"`
	FreeText string        `json:"event_free_text"`

	// AuxData is populated only on delete notifications, carrying the
	// snapshot of child records taken before the cascade.
	AuxData []EventAuxData `json:"aux_data,omitempty"`
}

// OptionValue returns the value of the named option and whether it exists.
func (e *Event) OptionValue(name string) (string, bool) {
	for _, opt := range e.Options {
		if opt.Name == name {
			return opt.Value, true
		}
	}
	return "", false
}

// InsertResult reports the outcome of an event or aux-data insert in the
// shape the write endpoints return.
type InsertResult struct {
	N             int    `json:"n"`
	OK            int    `json:"ok"`
	InsertedCount int    `json:"insertedCount"`
	InsertedID    string `json:"insertedId"`
}
