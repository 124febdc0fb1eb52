package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/oceanlog/oceanlog/pkg/query"
)

const maxBodyBytes = 1 << 20 // 1MB limit

// decodeValidated reads the request body, checks it against the schema, and
// unmarshals it into dst. Any failure is a client error.
func decodeValidated(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("payload validation: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// parseEventFilter decodes the shared event listing parameters. Absent time
// bounds stay nil: unscoped listings apply defaultTimeBounds, scoped ones
// let the resolved cruise or lowering window supply the missing bound.
func parseEventFilter(q url.Values, literalFreetext bool) (query.Filter, error) {
	f := query.Filter{
		Authors:  q["author"],
		Values:   q["value"],
		FreeText: q.Get("freetext"),
		Literal:  literalFreetext,
	}

	var err error
	if f.Start, err = parseTimeParam(q, "startTS"); err != nil {
		return query.Filter{}, err
	}
	if f.Stop, err = parseTimeParam(q, "stopTS"); err != nil {
		return query.Filter{}, err
	}
	return f, nil
}

// defaultTimeBounds fills the absent bound of a half-open request window
// with the epoch or now.
func defaultTimeBounds(f query.Filter, now time.Time) query.Filter {
	if start, stop, ok := f.TimeWindow(now); ok {
		f.Start, f.Stop = &start, &stop
	}
	return f
}

func parseTimeParam(q url.Values, name string) (*time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", name, err)
	}
	t = t.UTC()
	return &t, nil
}

func parsePage(q url.Values) (query.Page, error) {
	var p query.Page
	var err error
	if p.Offset, err = parseIntParam(q, "offset"); err != nil {
		return query.Page{}, err
	}
	if p.Limit, err = parseIntParam(q, "limit"); err != nil {
		return query.Page{}, err
	}
	p.Sort = query.SortFromParam(q.Get("sort"))
	return p, nil
}

func parseIntParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", name)
	}
	return n, nil
}

// pathID extracts and validates the {id} path segment.
func pathID(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if err := uuid.Validate(id); err != nil {
		return "", fmt.Errorf("malformed id %q", id)
	}
	return id, nil
}
