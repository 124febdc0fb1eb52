package query

import (
	"regexp"
	"strings"
	"time"

	"github.com/oceanlog/oceanlog/pkg/models"
)

// Predicate is a compiled event filter: the conjunction of its non-empty
// clauses. Clause order never affects the result set. Stores walk the
// exported fields to render their native query; Matches evaluates the same
// conjunction in memory.
type Predicate struct {
	// AuthorIn, when non-empty, requires event_author membership.
	AuthorIn []string
	// ValueIn / ValueNotIn require event_value membership / non-membership.
	ValueIn    []string
	ValueNotIn []string
	// FreeText is the raw pattern; FreeTextLiteral selects substring
	// semantics instead of regex.
	FreeText        string
	FreeTextLiteral bool
	// IDIn, when non-nil, requires identifier membership. An empty non-nil
	// set matches nothing.
	IDIn []string
	// Start / Stop bound ts inclusively when set.
	Start *time.Time
	Stop  *time.Time

	freeTextRE *regexp.Regexp
}

// Universal reports whether the predicate passes every record.
func (p Predicate) Universal() bool {
	return len(p.AuthorIn) == 0 && len(p.ValueIn) == 0 && len(p.ValueNotIn) == 0 &&
		p.FreeText == "" && p.IDIn == nil && p.Start == nil && p.Stop == nil
}

// Matches evaluates the predicate against an event.
func (p Predicate) Matches(ev *models.Event) bool {
	if len(p.AuthorIn) > 0 && !contains(p.AuthorIn, ev.Author) {
		return false
	}
	if len(p.ValueIn) > 0 && !contains(p.ValueIn, ev.Value) {
		return false
	}
	if len(p.ValueNotIn) > 0 && contains(p.ValueNotIn, ev.Value) {
		return false
	}
	if p.FreeText != "" && !p.matchFreeText(ev.FreeText) {
		return false
	}
	if p.IDIn != nil && !contains(p.IDIn, ev.ID) {
		return false
	}
	if p.Start != nil && ev.TS.Before(*p.Start) {
		return false
	}
	if p.Stop != nil && ev.TS.After(*p.Stop) {
		return false
	}
	return true
}

func (p Predicate) matchFreeText(text string) bool {
	if p.FreeTextLiteral {
		return strings.Contains(text, p.FreeText)
	}
	if p.freeTextRE == nil {
		// Predicate built by hand rather than Compile; fall back lazily.
		re, err := regexp.Compile(p.FreeText)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return p.freeTextRE.MatchString(text)
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Sort selects the timestamp ordering of a listing.
type Sort int

const (
	SortOldestFirst Sort = iota
	SortNewestFirst
)

// SortFromParam maps the request sort parameter to an ordering; anything
// other than "newest" keeps the ascending default.
func SortFromParam(s string) Sort {
	if s == "newest" {
		return SortNewestFirst
	}
	return SortOldestFirst
}

// Page carries pagination and ordering, appended to queries mechanically and
// never part of the predicate itself. A Limit of 0 means unbounded.
type Page struct {
	Offset int
	Limit  int
	Sort   Sort
}

// AuxFilter holds the decoded aux-data filter parameters.
type AuxFilter struct {
	// EventIDs restricts records to the given owning events; nil means
	// unconstrained, an empty non-nil set matches nothing.
	EventIDs []string
	// DataSources matches data_source by set membership.
	DataSources []string
}

// Compile turns the aux filter into its predicate. Aux clauses have no
// failure mode.
func (f AuxFilter) Compile() AuxPredicate {
	return AuxPredicate{EventIDIn: f.EventIDs, DataSourceIn: f.DataSources}
}

// AuxPredicate is the compiled conjunction for aux-data queries.
type AuxPredicate struct {
	EventIDIn    []string
	DataSourceIn []string
}

// Matches evaluates the predicate against an aux-data record.
func (p AuxPredicate) Matches(a *models.EventAuxData) bool {
	if p.EventIDIn != nil && !contains(p.EventIDIn, a.EventID) {
		return false
	}
	if len(p.DataSourceIn) > 0 && !contains(p.DataSourceIn, a.DataSource) {
		return false
	}
	return true
}
