package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanlog/oceanlog/pkg/models"
	"github.com/oceanlog/oceanlog/pkg/query"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, DialectPostgres), mock
}

func TestEventStore_Insert(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WithArgs("ev-1", "alice", sqlmock.AnyArg(), "FISH", "a big one",
			`[{"event_option_name":"species","event_option_value":"tuna"}]`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := es.Insert(context.Background(), &models.Event{
		ID:       "ev-1",
		Author:   "alice",
		TS:       time.Now(),
		Value:    "FISH",
		FreeText: "a big one",
		Options:  []models.EventOption{{Name: "species", Value: "tuna"}},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_InsertDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO events")).
		WillReturnError(&duplicateKeyStub{})

	err := es.Insert(context.Background(), &models.Event{ID: "ev-1", Options: []models.EventOption{}})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

// duplicateKeyStub mimics the SQLite driver's unique-violation message.
type duplicateKeyStub struct{}

func (*duplicateKeyStub) Error() string { return "UNIQUE constraint failed: events.id" }

func TestEventStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, event_author, ts, event_value, event_free_text, event_options FROM events WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_author", "ts", "event_value", "event_free_text", "event_options"}))

	ev, err := es.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestEventStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "event_author", "ts", "event_value", "event_free_text", "event_options"}).
		AddRow("ev-1", "alice", ts, "FISH", "", []byte(`[]`))

	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE id = $1")).
		WithArgs("ev-1").
		WillReturnRows(rows)

	ev, err := es.Get(context.Background(), "ev-1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "alice", ev.Author)
	assert.Equal(t, ts, ev.TS)
	assert.NotNil(t, ev.Options)
}

func TestEventStore_FindRendersPredicate(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := query.Predicate{
		AuthorIn:   []string{"alice", "bob"},
		ValueIn:    []string{"FISH"},
		ValueNotIn: []string{"CORAL"},
		Start:      &start,
	}

	expected := "SELECT id, event_author, ts, event_value, event_free_text, event_options FROM events" +
		" WHERE event_author IN ($1, $2) AND event_value IN ($3) AND event_value NOT IN ($4) AND ts >= $5" +
		" ORDER BY ts DESC LIMIT 10 OFFSET 20"
	mock.ExpectQuery(regexp.QuoteMeta(expected)).
		WithArgs("alice", "bob", "FISH", "CORAL", start).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_author", "ts", "event_value", "event_free_text", "event_options"}).
			AddRow("ev-2", "bob", start, "FISH", "", []byte(`[]`)))

	out, err := es.Find(context.Background(), p, query.Page{Offset: 20, Limit: 10, Sort: query.SortNewestFirst})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ev-2", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_FindEmptyIDSetMatchesNothing(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	p := query.Predicate{IDIn: []string{}}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1 = 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_author", "ts", "event_value", "event_free_text", "event_options"}))

	out, err := es.Find(context.Background(), p, query.Page{})
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestEventStore_FreeTextRegexPostgres(t *testing.T) {
	s, _ := newMockStore(t)
	es := NewEventStore(s)

	where, args := es.where(query.Predicate{FreeText: "whale.*shark"})
	assert.Contains(t, where, "event_free_text ~ ?")
	assert.Equal(t, []any{"whale.*shark"}, args)
}

func TestEventStore_FreeTextLiteralSQLite(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	es := NewEventStore(NewWithDB(db, DialectSQLite))

	where, args := es.where(query.Predicate{FreeText: "whale"})
	assert.Contains(t, where, "LIKE '%' || ? || '%'")
	assert.Equal(t, []any{"whale"}, args)
}

func TestEventStore_SQLiteOffsetWithoutLimit(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	es := NewEventStore(NewWithDB(db, DialectSQLite))

	clause := es.orderAndPage(query.Page{Offset: 5})
	assert.Equal(t, " ORDER BY ts ASC LIMIT -1 OFFSET 5", clause)
}

func TestEventStore_DeleteCascadeUsesOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1")).
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM event_aux_data WHERE event_id = $1")).
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := es.DeleteCascade(context.Background(), "ev-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_DeleteCascadeRollsBackOnChildFailure(t *testing.T) {
	s, mock := newMockStore(t)
	es := NewEventStore(s)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE id = $1")).
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM event_aux_data")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := es.DeleteCascade(context.Background(), "ev-1")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
