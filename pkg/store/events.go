package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oceanlog/oceanlog/pkg/models"
	"github.com/oceanlog/oceanlog/pkg/query"
)

// EventStore persists events.
type EventStore struct {
	s *Store
}

func NewEventStore(s *Store) *EventStore {
	return &EventStore{s: s}
}

const eventColumns = "id, event_author, ts, event_value, event_free_text, event_options"

// Insert writes a new event row. A unique-key collision returns
// ErrDuplicateKey so the orchestrator can convert it into an update.
func (es *EventStore) Insert(ctx context.Context, ev *models.Event) error {
	opts, err := json.Marshal(ev.Options)
	if err != nil {
		return fmt.Errorf("marshal event options: %w", err)
	}
	q := es.s.rebind(`INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = es.s.db.ExecContext(ctx, q,
		ev.ID, ev.Author, ev.TS.UTC(), ev.Value, ev.FreeText, string(opts))
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("insert event %s: %w", ev.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Get fetches one event; (nil, nil) when no row exists.
func (es *EventStore) Get(ctx context.Context, id string) (*models.Event, error) {
	q := es.s.rebind(`SELECT ` + eventColumns + ` FROM events WHERE id = ?`)
	row := es.s.db.QueryRowContext(ctx, q, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

// Find returns the events matching the compiled predicate, ordered and
// paginated per page.
func (es *EventStore) Find(ctx context.Context, p query.Predicate, page query.Page) ([]models.Event, error) {
	where, args := es.where(p)
	q := `SELECT ` + eventColumns + ` FROM events` + where + es.orderAndPage(page)
	rows, err := es.s.db.QueryContext(ctx, es.s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	return out, nil
}

// FindIDs returns only the identifiers of matching events, ts-ascending.
// The aux-data listings use this for their events-side join.
func (es *EventStore) FindIDs(ctx context.Context, p query.Predicate) ([]string, error) {
	where, args := es.where(p)
	q := `SELECT id FROM events` + where + ` ORDER BY ts ASC`
	rows, err := es.s.db.QueryContext(ctx, es.s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("find event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find event ids: %w", err)
	}
	return ids, nil
}

// Update replaces every stored field of the event except the identifier.
func (es *EventStore) Update(ctx context.Context, ev *models.Event) error {
	opts, err := json.Marshal(ev.Options)
	if err != nil {
		return fmt.Errorf("marshal event options: %w", err)
	}
	q := es.s.rebind(`UPDATE events
		SET event_author = ?, ts = ?, event_value = ?, event_free_text = ?, event_options = ?
		WHERE id = ?`)
	if _, err := es.s.db.ExecContext(ctx, q,
		ev.Author, ev.TS.UTC(), ev.Value, ev.FreeText, string(opts), ev.ID); err != nil {
		return fmt.Errorf("update event %s: %w", ev.ID, err)
	}
	return nil
}

// DeleteCascade removes an event and all aux-data referencing it in one
// transaction, so a crash cannot orphan the children.
func (es *EventStore) DeleteCascade(ctx context.Context, id string) error {
	tx, err := es.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, es.s.rebind(`DELETE FROM events WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, es.s.rebind(`DELETE FROM event_aux_data WHERE event_id = ?`), id); err != nil {
		return fmt.Errorf("delete aux data for event %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// DeleteAll wipes the events and aux-data collections. Returns the number of
// events removed.
func (es *EventStore) DeleteAll(ctx context.Context) (int64, error) {
	tx, err := es.s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin wipe tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return 0, fmt.Errorf("wipe events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_aux_data`); err != nil {
		return 0, fmt.Errorf("wipe aux data: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit wipe tx: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// where renders the predicate's clauses as SQL. Each clause is independent;
// the conjunction is the same regardless of rendering order.
func (es *EventStore) where(p query.Predicate) (string, []any) {
	var conds []string
	var args []any

	if len(p.AuthorIn) == 1 {
		conds = append(conds, `event_author = ?`)
		args = append(args, p.AuthorIn[0])
	} else if len(p.AuthorIn) > 1 {
		conds = append(conds, `event_author IN (`+placeholders(len(p.AuthorIn))+`)`)
		args = append(args, toAnySlice(p.AuthorIn)...)
	}

	if len(p.ValueIn) == 1 && len(p.ValueNotIn) == 0 {
		conds = append(conds, `event_value = ?`)
		args = append(args, p.ValueIn[0])
	} else if len(p.ValueIn) > 0 {
		conds = append(conds, `event_value IN (`+placeholders(len(p.ValueIn))+`)`)
		args = append(args, toAnySlice(p.ValueIn)...)
	}
	if len(p.ValueNotIn) == 1 && len(p.ValueIn) == 0 {
		conds = append(conds, `event_value != ?`)
		args = append(args, p.ValueNotIn[0])
	} else if len(p.ValueNotIn) > 0 {
		conds = append(conds, `event_value NOT IN (`+placeholders(len(p.ValueNotIn))+`)`)
		args = append(args, toAnySlice(p.ValueNotIn)...)
	}

	if p.FreeText != "" {
		if p.FreeTextLiteral || es.s.dialect == DialectSQLite {
			// Literal substring match. SQLite has no regex operator without
			// an extension, so lite mode always matches literally.
			conds = append(conds, `event_free_text LIKE '%' || ? || '%'`)
			args = append(args, p.FreeText)
		} else {
			// The caller-supplied pattern goes to the server unescaped,
			// matching the regex semantics of the original API.
			conds = append(conds, `event_free_text ~ ?`)
			args = append(args, p.FreeText)
		}
	}

	if p.IDIn != nil {
		if len(p.IDIn) == 0 {
			conds = append(conds, `1 = 0`)
		} else {
			conds = append(conds, `id IN (`+placeholders(len(p.IDIn))+`)`)
			args = append(args, toAnySlice(p.IDIn)...)
		}
	}

	if p.Start != nil {
		conds = append(conds, `ts >= ?`)
		args = append(args, p.Start.UTC())
	}
	if p.Stop != nil {
		conds = append(conds, `ts <= ?`)
		args = append(args, p.Stop.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (es *EventStore) orderAndPage(page query.Page) string {
	order := " ORDER BY ts ASC"
	if page.Sort == query.SortNewestFirst {
		order = " ORDER BY ts DESC"
	}
	var b strings.Builder
	b.WriteString(order)
	if page.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", page.Limit)
	} else if page.Offset > 0 && es.s.dialect == DialectSQLite {
		// SQLite requires a LIMIT clause before OFFSET.
		b.WriteString(" LIMIT -1")
	}
	if page.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", page.Offset)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var ev models.Event
	var opts []byte
	if err := row.Scan(&ev.ID, &ev.Author, &ev.TS, &ev.Value, &ev.FreeText, &opts); err != nil {
		return nil, err
	}
	ev.TS = ev.TS.UTC()
	if len(opts) > 0 {
		if err := json.Unmarshal(opts, &ev.Options); err != nil {
			return nil, fmt.Errorf("unmarshal event options: %w", err)
		}
	}
	if ev.Options == nil {
		ev.Options = []models.EventOption{}
	}
	return &ev, nil
}
