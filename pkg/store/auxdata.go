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

// AuxDataStore persists auxiliary data records attached to events.
type AuxDataStore struct {
	s *Store
}

func NewAuxDataStore(s *Store) *AuxDataStore {
	return &AuxDataStore{s: s}
}

const auxColumns = "id, event_id, data_source, data_array"

// Insert writes a new aux-data row. A collision on the (event_id,
// data_source) natural key returns ErrDuplicateKey.
func (as *AuxDataStore) Insert(ctx context.Context, ad *models.EventAuxData) error {
	arr, err := json.Marshal(ad.DataArray)
	if err != nil {
		return fmt.Errorf("marshal data array: %w", err)
	}
	q := as.s.rebind(`INSERT INTO event_aux_data (` + auxColumns + `) VALUES (?, ?, ?, ?)`)
	_, err = as.s.db.ExecContext(ctx, q, ad.ID, ad.EventID, ad.DataSource, string(arr))
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("insert aux data %s/%s: %w", ad.EventID, ad.DataSource, ErrDuplicateKey)
		}
		return fmt.Errorf("insert aux data: %w", err)
	}
	return nil
}

// Get fetches one aux-data record; (nil, nil) when no row exists.
func (as *AuxDataStore) Get(ctx context.Context, id string) (*models.EventAuxData, error) {
	q := as.s.rebind(`SELECT ` + auxColumns + ` FROM event_aux_data WHERE id = ?`)
	ad, err := scanAuxData(as.s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aux data %s: %w", id, err)
	}
	return ad, nil
}

// GetByNaturalKey fetches the record for one (event, data source) pair;
// (nil, nil) when no row exists.
func (as *AuxDataStore) GetByNaturalKey(ctx context.Context, eventID, dataSource string) (*models.EventAuxData, error) {
	q := as.s.rebind(`SELECT ` + auxColumns + ` FROM event_aux_data WHERE event_id = ? AND data_source = ?`)
	ad, err := scanAuxData(as.s.db.QueryRowContext(ctx, q, eventID, dataSource))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aux data %s/%s: %w", eventID, dataSource, err)
	}
	return ad, nil
}

// Find returns aux-data records matching the predicate, ordered by event id
// then data source for stable pagination.
func (as *AuxDataStore) Find(ctx context.Context, p query.AuxPredicate, offset, limit int) ([]models.EventAuxData, error) {
	var conds []string
	var args []any

	if p.EventIDIn != nil {
		if len(p.EventIDIn) == 0 {
			conds = append(conds, `1 = 0`)
		} else {
			conds = append(conds, `event_id IN (`+placeholders(len(p.EventIDIn))+`)`)
			args = append(args, toAnySlice(p.EventIDIn)...)
		}
	}
	if len(p.DataSourceIn) == 1 {
		conds = append(conds, `data_source = ?`)
		args = append(args, p.DataSourceIn[0])
	} else if len(p.DataSourceIn) > 1 {
		conds = append(conds, `data_source IN (`+placeholders(len(p.DataSourceIn))+`)`)
		args = append(args, toAnySlice(p.DataSourceIn)...)
	}

	q := `SELECT ` + auxColumns + ` FROM event_aux_data`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY event_id ASC, data_source ASC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	} else if offset > 0 && as.s.dialect == DialectSQLite {
		q += " LIMIT -1"
	}
	if offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := as.s.db.QueryContext(ctx, as.s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("find aux data: %w", err)
	}
	defer rows.Close()

	var out []models.EventAuxData
	for rows.Next() {
		ad, err := scanAuxData(rows)
		if err != nil {
			return nil, fmt.Errorf("scan aux data: %w", err)
		}
		out = append(out, *ad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find aux data: %w", err)
	}
	return out, nil
}

// FindByEvent returns every aux-data record attached to one event.
func (as *AuxDataStore) FindByEvent(ctx context.Context, eventID string) ([]models.EventAuxData, error) {
	return as.Find(ctx, query.AuxPredicate{EventIDIn: []string{eventID}}, 0, 0)
}

// FindEventIDsByDataSource returns the distinct event ids that carry aux data
// from any of the given sources. Used to narrow event listings by datasource.
func (as *AuxDataStore) FindEventIDsByDataSource(ctx context.Context, sources []string) ([]string, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	q := as.s.rebind(`SELECT DISTINCT event_id FROM event_aux_data WHERE data_source IN (` +
		placeholders(len(sources)) + `)`)
	rows, err := as.s.db.QueryContext(ctx, q, toAnySlice(sources)...)
	if err != nil {
		return nil, fmt.Errorf("find event ids by data source: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find event ids by data source: %w", err)
	}
	return ids, nil
}

// Update replaces the data array of an existing record.
func (as *AuxDataStore) Update(ctx context.Context, ad *models.EventAuxData) error {
	arr, err := json.Marshal(ad.DataArray)
	if err != nil {
		return fmt.Errorf("marshal data array: %w", err)
	}
	q := as.s.rebind(`UPDATE event_aux_data SET event_id = ?, data_source = ?, data_array = ? WHERE id = ?`)
	if _, err := as.s.db.ExecContext(ctx, q, ad.EventID, ad.DataSource, string(arr), ad.ID); err != nil {
		return fmt.Errorf("update aux data %s: %w", ad.ID, err)
	}
	return nil
}

// Delete removes one aux-data record.
func (as *AuxDataStore) Delete(ctx context.Context, id string) error {
	q := as.s.rebind(`DELETE FROM event_aux_data WHERE id = ?`)
	if _, err := as.s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete aux data %s: %w", id, err)
	}
	return nil
}

// DeleteAll wipes the aux-data collection.
func (as *AuxDataStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := as.s.db.ExecContext(ctx, `DELETE FROM event_aux_data`)
	if err != nil {
		return 0, fmt.Errorf("wipe aux data: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanAuxData(row rowScanner) (*models.EventAuxData, error) {
	var ad models.EventAuxData
	var arr []byte
	if err := row.Scan(&ad.ID, &ad.EventID, &ad.DataSource, &arr); err != nil {
		return nil, err
	}
	if len(arr) > 0 {
		if err := json.Unmarshal(arr, &ad.DataArray); err != nil {
			return nil, fmt.Errorf("unmarshal data array: %w", err)
		}
	}
	if ad.DataArray == nil {
		ad.DataArray = []models.DataItem{}
	}
	return &ad, nil
}
