package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/medilink/internal/model"
)

func TestWardRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO wards`).
		WithArgs("General", "General Medicine", `["wifi"]`).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(`INSERT INTO ward_rooms`).
		WithArgs(5, 1, 6, 5, 2, 4).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	w := &model.Ward{Name: "General", Category: "General Medicine", Features: []string{"wifi"},
		Rooms: []model.WardRoom{{Number: 1, Beds: 6}, {Number: 2, Beds: 4}}}
	require.NoError(t, NewWardRepo(db).Create(context.Background(), w))
	assert.EqualValues(t, 5, w.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWardRepo_Create_DuplicateName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO wards`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'General' for key 'wards.uq_wards_name'"})
	mock.ExpectRollback()

	err = NewWardRepo(db).Create(context.Background(), &model.Ward{Name: "General", Category: "x"})
	assert.ErrorIs(t, err, ErrWardExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWardRepo_Update_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM wards WHERE id`).WithArgs(42).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectRollback()

	err = NewWardRepo(db).Update(context.Background(), &model.Ward{ID: 42, Name: "ICU", Category: "Critical"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func expectWardLock(mock sqlmock.Sqlmock, id uint64, name string, active ...[2]int) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT name FROM wards WHERE id = \? FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(name))
	rows := sqlmock.NewRows([]string{"ward_number", "bed_number"})
	for _, b := range active {
		rows.AddRow(b[0], b[1])
	}
	mock.ExpectQuery(`FROM bed_allocations WHERE ward_name = \? AND status = 'active' FOR UPDATE`).
		WithArgs(name).
		WillReturnRows(rows)
}

func TestWardRepo_Update_RewritesRooms(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectWardLock(mock, 5, "General", [2]int{1, 3})
	mock.ExpectExec(`UPDATE wards SET name`).
		WithArgs("General", "General Medicine", `[]`, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM ward_rooms`).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO ward_rooms`).WithArgs(5, 1, 4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// shrinking room 1 to four beds keeps occupied bed 3
	err = NewWardRepo(db).Update(context.Background(), &model.Ward{ID: 5, Name: "General", Category: "General Medicine",
		Rooms: []model.WardRoom{{Number: 1, Beds: 4}}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWardRepo_Update_RefusesWhileBedsOccupied(t *testing.T) {
	tests := []struct {
		name string
		ward *model.Ward
	}{
		{"rename", &model.Ward{ID: 5, Name: "General Medicine", Category: "x", Rooms: []model.WardRoom{{Number: 1, Beds: 6}}}},
		{"shrink room", &model.Ward{ID: 5, Name: "General", Category: "x", Rooms: []model.WardRoom{{Number: 1, Beds: 2}}}},
		{"drop room", &model.Ward{ID: 5, Name: "General", Category: "x", Rooms: []model.WardRoom{{Number: 2, Beds: 6}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			expectWardLock(mock, 5, "General", [2]int{1, 3})
			mock.ExpectRollback()

			err = NewWardRepo(db).Update(context.Background(), tt.ward)
			assert.ErrorIs(t, err, ErrWardInUse)
			assert.ErrorIs(t, err, ErrConflict)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWardRepo_Update_RenameWithoutActiveAllocations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectWardLock(mock, 5, "General")
	mock.ExpectExec(`UPDATE wards SET name`).
		WithArgs("General Medicine", "x", `[]`, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM ward_rooms`).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = NewWardRepo(db).Update(context.Background(), &model.Ward{ID: 5, Name: "General Medicine", Category: "x"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWardRepo_List_GroupsRooms(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM wards w`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category", "features", "created_at", "updated_at", "room_number", "beds"}).
			AddRow(1, "General", "General Medicine", `["fan"]`, ts, ts, 1, 6).
			AddRow(1, "General", "General Medicine", `["fan"]`, ts, ts, 2, 4).
			AddRow(2, "ICU", "Critical", nil, ts, ts, nil, nil))

	wards, err := NewWardRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, wards, 2)
	assert.Equal(t, []model.WardRoom{{Number: 1, Beds: 6}, {Number: 2, Beds: 4}}, wards[0].Rooms)
	assert.Equal(t, []string{"fan"}, wards[0].Features)
	assert.Empty(t, wards[1].Rooms)
	assert.Empty(t, wards[1].Features)
}

func TestWardRepo_HasBed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewWardRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT wr.beds FROM ward_rooms`).
		WithArgs("General", 1).
		WillReturnRows(sqlmock.NewRows([]string{"beds"}).AddRow(6))
	ok, err := repo.HasBed(ctx, model.BedKey{WardName: "General", WardNumber: 1, BedNumber: 7})
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(`SELECT wr.beds FROM ward_rooms`).
		WithArgs("General", 9).
		WillReturnRows(sqlmock.NewRows([]string{"beds"}))
	ok, err = repo.HasBed(ctx, model.BedKey{WardName: "General", WardNumber: 9, BedNumber: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(`SELECT wr.beds FROM ward_rooms`).
		WithArgs("General", 1).
		WillReturnRows(sqlmock.NewRows([]string{"beds"}).AddRow(6))
	ok, err = repo.HasBed(ctx, model.BedKey{WardName: "General", WardNumber: 1, BedNumber: 6})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWardRepo_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM wards WHERE id = \?`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category", "features", "created_at", "updated_at"}).
			AddRow(3, "Maternity", "Maternity", `null`, ts, ts))
	mock.ExpectQuery(`SELECT room_number, beds FROM ward_rooms`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"room_number", "beds"}).AddRow(1, 8))

	w, err := NewWardRepo(db).GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Maternity", w.Name)
	assert.Equal(t, []string{}, w.Features)
	assert.True(t, w.HasBed(1, 8))
	assert.NoError(t, mock.ExpectationsWereMet())
}
