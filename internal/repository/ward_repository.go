package repository // repository holds data access logic for domain entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/iliyamo/medilink/internal/model"
)

// WardRepo provides methods to create, update and list wards together with
// their numbered rooms.  Rooms live in ward_rooms and are always replaced
// as a whole when a ward is written.
type WardRepo struct {
	db *sql.DB
}

// NewWardRepo constructs a WardRepo with the given DB handle.
func NewWardRepo(db *sql.DB) *WardRepo {
	return &WardRepo{db: db}
}

// Create inserts a ward and its rooms in one transaction.  After insert the
// ID field of the ward is set.  A duplicate name yields ErrWardExists.
func (r *WardRepo) Create(ctx context.Context, w *model.Ward) error {
	features, err := json.Marshal(nonNil(w.Features))
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO wards (name, category, features) VALUES (?, ?, ?)`,
		w.Name, w.Category, string(features))
	if err != nil {
		if _, dup := duplicateKey(err); dup {
			return ErrWardExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	w.ID = uint64(id)
	if err := insertRoomsTx(ctx, tx, w.ID, w.Rooms); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Update overwrites name, category, features and rooms of an existing
// ward.  It returns ErrNotFound when the ward does not exist and
// ErrWardInUse when the new name or rooms would no longer contain a bed
// held by an active allocation.  The active rows stay locked until commit.
func (r *WardRepo) Update(ctx context.Context, w *model.Ward) error {
	features, err := json.Marshal(nonNil(w.Features))
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var oldName string
	if err := tx.QueryRowContext(ctx, `SELECT name FROM wards WHERE id = ? FOR UPDATE`, w.ID).Scan(&oldName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	active, err := activeBedsTx(ctx, tx, oldName)
	if err != nil {
		return err
	}
	if !w.KeepsBeds(active) {
		return ErrWardInUse
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE wards SET name = ?, category = ?, features = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		w.Name, w.Category, string(features), w.ID); err != nil {
		if _, dup := duplicateKey(err); dup {
			return ErrWardExists
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ward_rooms WHERE ward_id = ?`, w.ID); err != nil {
		return err
	}
	if err := insertRoomsTx(ctx, tx, w.ID, w.Rooms); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// activeBedsTx locks and returns the beds of a ward held by active
// allocations.
func activeBedsTx(ctx context.Context, tx *sql.Tx, wardName string) ([]model.BedKey, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ward_number, bed_number FROM bed_allocations WHERE ward_name = ? AND status = 'active' FOR UPDATE`,
		wardName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BedKey
	for rows.Next() {
		b := model.BedKey{WardName: wardName}
		if err := rows.Scan(&b.WardNumber, &b.BedNumber); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// insertRoomsTx bulk inserts the rooms of a ward.  Passing an empty slice
// has no effect.
func insertRoomsTx(ctx context.Context, tx *sql.Tx, wardID uint64, rooms []model.WardRoom) error {
	if len(rooms) == 0 {
		return nil
	}
	query := `INSERT INTO ward_rooms (ward_id, room_number, beds) VALUES `
	args := make([]interface{}, 0, len(rooms)*3)
	for i, rm := range rooms {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, wardID, rm.Number, rm.Beds)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// List returns every ward ordered by name, with rooms ordered by number.
func (r *WardRepo) List(ctx context.Context) ([]*model.Ward, error) {
	const q = `SELECT w.id, w.name, w.category, w.features, w.created_at, w.updated_at, wr.room_number, wr.beds
	           FROM wards w
	           LEFT JOIN ward_rooms wr ON wr.ward_id = w.id
	           ORDER BY w.name, wr.room_number`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Ward{}
	byID := map[uint64]*model.Ward{}
	for rows.Next() {
		var (
			w        model.Ward
			features sql.NullString
			room     sql.NullInt64
			beds     sql.NullInt64
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.Category, &features, &w.CreatedAt, &w.UpdatedAt, &room, &beds); err != nil {
			return nil, err
		}
		cur, ok := byID[w.ID]
		if !ok {
			w.Features = decodeFeatures(features)
			w.Rooms = []model.WardRoom{}
			cur = &w
			byID[w.ID] = cur
			out = append(out, cur)
		}
		if room.Valid {
			cur.Rooms = append(cur.Rooms, model.WardRoom{Number: int(room.Int64), Beds: int(beds.Int64)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByName returns the ward with its rooms or ErrNotFound.
func (r *WardRepo) GetByName(ctx context.Context, name string) (*model.Ward, error) {
	return r.getOne(ctx, `name = ?`, name)
}

// GetByID returns the ward with its rooms or ErrNotFound.
func (r *WardRepo) GetByID(ctx context.Context, id uint64) (*model.Ward, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *WardRepo) getOne(ctx context.Context, where string, arg any) (*model.Ward, error) {
	var (
		w        model.Ward
		features sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, category, features, created_at, updated_at FROM wards WHERE `+where, arg).
		Scan(&w.ID, &w.Name, &w.Category, &features, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	w.Features = decodeFeatures(features)

	rows, err := r.db.QueryContext(ctx,
		`SELECT room_number, beds FROM ward_rooms WHERE ward_id = ? ORDER BY room_number`, w.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	w.Rooms = []model.WardRoom{}
	for rows.Next() {
		var rm model.WardRoom
		if err := rows.Scan(&rm.Number, &rm.Beds); err != nil {
			return nil, err
		}
		w.Rooms = append(w.Rooms, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &w, nil
}

// HasBed reports whether the ward has the given room and the bed number
// lies within the room's bed count.
func (r *WardRepo) HasBed(ctx context.Context, key model.BedKey) (bool, error) {
	const q = `SELECT wr.beds FROM ward_rooms wr
	           JOIN wards w ON w.id = wr.ward_id
	           WHERE w.name = ? AND wr.room_number = ?`
	var beds int
	err := r.db.QueryRowContext(ctx, q, key.WardName, key.WardNumber).Scan(&beds)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return key.BedNumber >= 1 && key.BedNumber <= beds, nil
}

func decodeFeatures(ns sql.NullString) []string {
	var out []string
	if ns.Valid && ns.String != "" {
		_ = json.Unmarshal([]byte(ns.String), &out)
	}
	return nonNil(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
