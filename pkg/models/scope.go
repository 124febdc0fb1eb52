package models

import "time"

// Cruise is a named expedition time window. Read-only from this service's
// perspective: scope resolution consults it, nothing here mutates it.
type Cruise struct {
	ID         string    `json:"id"`
	CruiseID   string    `json:"cruise_id"`
	StartTS    time.Time `json:"start_ts"`
	StopTS     time.Time `json:"stop_ts"`
	Hidden     bool      `json:"cruise_hidden"`
	AccessList []string  `json:"cruise_access_list,omitempty"`
}

// Lowering is a dive/deployment sub-period within a cruise. Read-only here.
type Lowering struct {
	ID         string    `json:"id"`
	LoweringID string    `json:"lowering_id"`
	StartTS    time.Time `json:"start_ts"`
	StopTS     time.Time `json:"stop_ts"`
	Hidden     bool      `json:"lowering_hidden"`
	AccessList []string  `json:"lowering_access_list,omitempty"`
}

// User carries the minimum identity needed to default an event author from
// the caller's credentials.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
