// Package query compiles request-level filter parameters into store
// predicates. A compiled Predicate is a conjunction of independent clauses:
// every backend renders it to its native query form, and Matches evaluates
// the same conjunction in memory so the two can be checked against each
// other. Building a predicate from an empty filter yields the universal
// predicate (all records pass).
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ExcludeMarker prefixes a value filter entry that must NOT match.
const ExcludeMarker = "!"

var ErrBadPattern = errors.New("invalid freetext pattern")

// Filter holds the decoded event filter parameters of a listing request.
// Nil/empty fields contribute no clause.
type Filter struct {
	// Authors matches event_author by set membership.
	Authors []string
	// Values matches event_value; entries prefixed with ExcludeMarker form
	// the exclusion set.
	Values []string
	// FreeText is matched against event_free_text. The pattern is passed to
	// the store as-is: regular-expression metacharacters are NOT escaped
	// unless Literal is set.
	FreeText string
	// Literal switches freetext matching from regex to plain substring.
	Literal bool
	// IDs restricts the result to an explicit identifier set, typically the
	// outcome of a data-source join or scope narrowing. nil means
	// unconstrained; an empty non-nil set matches nothing.
	IDs []string
	// Start and Stop bound the timestamp window, both inclusive.
	Start *time.Time
	Stop  *time.Time
}

// WithIDs returns a copy of the filter whose identifier clause is the
// intersection of the existing clause (if any) and ids.
func (f Filter) WithIDs(ids []string) Filter {
	if f.IDs == nil {
		f.IDs = ids
		return f
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	var both []string
	for _, id := range f.IDs {
		if seen[id] {
			both = append(both, id)
		}
	}
	if both == nil {
		both = []string{}
	}
	f.IDs = both
	return f
}

// Compile turns the filter into a Predicate. The only failure mode is an
// unparsable freetext regular expression.
func (f Filter) Compile() (Predicate, error) {
	p := Predicate{
		AuthorIn: f.Authors,
		IDIn:     f.IDs,
		Start:    f.Start,
		Stop:     f.Stop,
	}

	for _, v := range f.Values {
		if stripped, ok := strings.CutPrefix(v, ExcludeMarker); ok {
			p.ValueNotIn = append(p.ValueNotIn, stripped)
		} else {
			p.ValueIn = append(p.ValueIn, v)
		}
	}

	if f.FreeText != "" {
		p.FreeText = f.FreeText
		p.FreeTextLiteral = f.Literal
		if !f.Literal {
			re, err := regexp.Compile(f.FreeText)
			if err != nil {
				return Predicate{}, fmt.Errorf("%w: %v", ErrBadPattern, err)
			}
			p.freeTextRE = re
		}
	}

	return p, nil
}

// TimeWindow returns the inclusive [start, stop] pair the predicate spans,
// defaulting absent bounds to the epoch and now respectively. It reports
// false when neither bound was supplied.
func (f Filter) TimeWindow(now time.Time) (time.Time, time.Time, bool) {
	if f.Start == nil && f.Stop == nil {
		return time.Time{}, time.Time{}, false
	}
	start := time.Unix(0, 0).UTC()
	stop := now
	if f.Start != nil {
		start = *f.Start
	}
	if f.Stop != nil {
		stop = *f.Stop
	}
	return start, stop, true
}
