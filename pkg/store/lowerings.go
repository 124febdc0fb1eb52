package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oceanlog/oceanlog/pkg/models"
)

// LoweringStore reads lowering records for scope resolution.
type LoweringStore struct {
	s *Store
}

func NewLoweringStore(s *Store) *LoweringStore {
	return &LoweringStore{s: s}
}

const loweringColumns = "id, lowering_id, start_ts, stop_ts, lowering_hidden, lowering_access_list"

// GetLowering fetches one lowering; (nil, nil) when no row exists.
func (ls *LoweringStore) GetLowering(ctx context.Context, id string) (*models.Lowering, error) {
	q := ls.s.rebind(`SELECT ` + loweringColumns + ` FROM lowerings WHERE id = ?`)
	row := ls.s.db.QueryRowContext(ctx, q, id)

	var l models.Lowering
	var access []byte
	err := row.Scan(&l.ID, &l.LoweringID, &l.StartTS, &l.StopTS, &l.Hidden, &access)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lowering %s: %w", id, err)
	}
	l.StartTS, l.StopTS = l.StartTS.UTC(), l.StopTS.UTC()
	if len(access) > 0 {
		if err := json.Unmarshal(access, &l.AccessList); err != nil {
			return nil, fmt.Errorf("unmarshal lowering access list: %w", err)
		}
	}
	return &l, nil
}

// Insert writes a lowering row. Exposed for seeding and tests.
func (ls *LoweringStore) Insert(ctx context.Context, l *models.Lowering) error {
	access, err := json.Marshal(l.AccessList)
	if err != nil {
		return fmt.Errorf("marshal lowering access list: %w", err)
	}
	q := ls.s.rebind(`INSERT INTO lowerings (` + loweringColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := ls.s.db.ExecContext(ctx, q,
		l.ID, l.LoweringID, l.StartTS.UTC(), l.StopTS.UTC(), l.Hidden, string(access)); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("insert lowering %s: %w", l.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("insert lowering: %w", err)
	}
	return nil
}
