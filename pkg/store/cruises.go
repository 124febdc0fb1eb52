package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oceanlog/oceanlog/pkg/models"
)

// CruiseStore reads cruise records for scope resolution.
type CruiseStore struct {
	s *Store
}

func NewCruiseStore(s *Store) *CruiseStore {
	return &CruiseStore{s: s}
}

const cruiseColumns = "id, cruise_id, start_ts, stop_ts, cruise_hidden, cruise_access_list"

// GetCruise fetches one cruise; (nil, nil) when no row exists.
func (cs *CruiseStore) GetCruise(ctx context.Context, id string) (*models.Cruise, error) {
	q := cs.s.rebind(`SELECT ` + cruiseColumns + ` FROM cruises WHERE id = ?`)
	row := cs.s.db.QueryRowContext(ctx, q, id)

	var c models.Cruise
	var access []byte
	err := row.Scan(&c.ID, &c.CruiseID, &c.StartTS, &c.StopTS, &c.Hidden, &access)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cruise %s: %w", id, err)
	}
	c.StartTS, c.StopTS = c.StartTS.UTC(), c.StopTS.UTC()
	if len(access) > 0 {
		if err := json.Unmarshal(access, &c.AccessList); err != nil {
			return nil, fmt.Errorf("unmarshal cruise access list: %w", err)
		}
	}
	return &c, nil
}

// Insert writes a cruise row. Exposed for seeding and tests.
func (cs *CruiseStore) Insert(ctx context.Context, c *models.Cruise) error {
	access, err := json.Marshal(c.AccessList)
	if err != nil {
		return fmt.Errorf("marshal cruise access list: %w", err)
	}
	q := cs.s.rebind(`INSERT INTO cruises (` + cruiseColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := cs.s.db.ExecContext(ctx, q,
		c.ID, c.CruiseID, c.StartTS.UTC(), c.StopTS.UTC(), c.Hidden, string(access)); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("insert cruise %s: %w", c.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("insert cruise: %w", err)
	}
	return nil
}
