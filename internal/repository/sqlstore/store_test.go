package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/seedling/internal/orm/query"
	"github.com/conduit-lang/seedling/internal/seed"
)

type Region struct {
	ID   int
	Code string
}

type Room struct {
	ID       int
	Name     string
	RegionID int
	Region   *Region
}

type Employee struct {
	ID        int
	Name      string
	ManagerID int
	Manager   *Employee
}

func newMock(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, dialect, WithRetry(RetryConfig{MaxRetries: 2, BaseBackoff: time.Millisecond})), mock
}

func TestStore_QueryBuildsWhereClause(t *testing.T) {
	store, mock := newMock(t, Postgres)

	mock.ExpectQuery(`SELECT id, name, region_id FROM rooms WHERE \(name = \$1\) ORDER BY id`).
		WithArgs("Room 3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "region_id"}).AddRow(3, "Room 3", 1))

	found, err := store.Query(context.Background(), reflect.TypeOf(Room{}), query.Eq("Name", "Room 3"))
	require.NoError(t, err)
	require.Len(t, found, 1)

	room := found[0].(*Room)
	assert.Equal(t, 3, room.ID)
	assert.Equal(t, 1, room.RegionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryReturnsSameInstance(t *testing.T) {
	store, mock := newMock(t, SQLite)
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "code"}).AddRow(1, "EU")
	}
	mock.ExpectQuery(`SELECT id, code FROM regions`).WillReturnRows(rows())
	mock.ExpectQuery(`SELECT id, code FROM regions`).WillReturnRows(rows())

	ctx := context.Background()
	first, err := store.Query(ctx, reflect.TypeOf(Region{}), query.All())
	require.NoError(t, err)
	second, err := store.Query(ctx, reflect.TypeOf(Region{}), query.All())
	require.NoError(t, err)

	assert.Same(t, first[0], second[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryEvaluatesNestedConditions(t *testing.T) {
	store, mock := newMock(t, Postgres)

	mock.ExpectQuery(`SELECT id, name, region_id FROM rooms ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "region_id"}).
			AddRow(1, "a", 7).
			AddRow(2, "b", 8))
	mock.ExpectQuery(`SELECT id, code FROM regions WHERE \(id = \$1\)`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(7, "EU"))
	mock.ExpectQuery(`SELECT id, code FROM regions WHERE \(id = \$1\)`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(8, "US"))

	found, err := store.Query(context.Background(), reflect.TypeOf(Room{}), query.Eq("Region.Code", "EU"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].(*Room).Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveInsertsParentsFirst(t *testing.T) {
	store, mock := newMock(t, Postgres)
	ctx := context.Background()

	room := &Room{Name: "Room 1", Region: &Region{Code: "EU"}}
	require.NoError(t, store.Add(ctx, room))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO regions \(code\) VALUES \(\$1\) RETURNING id`).
		WithArgs("EU").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`INSERT INTO rooms \(name,region_id\) VALUES \(\$1,\$2\) RETURNING id`).
		WithArgs("Room 1", 7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	require.NoError(t, store.SaveChanges(ctx))
	assert.Equal(t, 3, room.ID)
	assert.Equal(t, 7, room.RegionID)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, staged := store.FindLocal(reflect.TypeOf(Room{}), query.All())
	assert.False(t, staged, "saved entities are no longer staged")
}

func TestStore_SaveUsesLastInsertID(t *testing.T) {
	store, mock := newMock(t, SQLite)
	ctx := context.Background()

	region := &Region{Code: "EU"}
	require.NoError(t, store.Add(ctx, region))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO regions \(code\) VALUES \(\?\)`).
		WithArgs("EU").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveChanges(ctx))
	assert.Equal(t, 5, region.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveKeepsExplicitKeys(t *testing.T) {
	store, mock := newMock(t, Postgres)
	ctx := context.Background()

	region := &Region{Code: "EU"}
	require.NoError(t, store.Add(ctx, region))
	require.NoError(t, store.SetPrimaryKey(region, 42))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO regions \(id,code\) VALUES \(\$1,\$2\)`).
		WithArgs(42, "EU").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveChanges(ctx))
	assert.Equal(t, 42, region.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SavePatchesSelfReferences(t *testing.T) {
	store, mock := newMock(t, SQLite)
	ctx := context.Background()

	boss := &Employee{Name: "boss"}
	boss.Manager = boss
	require.NoError(t, store.Add(ctx, boss))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO employees \(name,manager_id\) VALUES \(\?,\?\)`).
		WithArgs("boss", 0).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(`UPDATE employees SET manager_id = \? WHERE id = \?`).
		WithArgs(9, 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveChanges(ctx))
	assert.Equal(t, 9, boss.ManagerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveRollsBackAndConvertsErrors(t *testing.T) {
	store, mock := newMock(t, Postgres)
	ctx := context.Background()

	room := &Room{Name: "Room 1", Region: &Region{Code: "EU"}}
	require.NoError(t, store.Add(ctx, room))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO regions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`INSERT INTO rooms`).
		WillReturnError(&pgconn.PgError{Code: "23505", Detail: "Key (name)=(Room 1) already exists."})
	mock.ExpectRollback()

	err := store.SaveChanges(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUniqueViolation))
	assert.Equal(t, 0, room.Region.ID, "keys of a rolled back save are cleared")
	assert.NoError(t, mock.ExpectationsWereMet())

	_, staged := store.FindLocal(reflect.TypeOf(Room{}), query.All())
	assert.True(t, staged, "a failed save keeps the staged entities")
}

func TestStore_SaveRetriesDeadlocks(t *testing.T) {
	store, mock := newMock(t, Postgres)
	ctx := context.Background()

	region := &Region{Code: "EU"}
	require.NoError(t, store.Add(ctx, region))

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO regions`).WillReturnError(&pgconn.PgError{Code: "40P01"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO regions`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveChanges(ctx))
	assert.Equal(t, 1, region.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveWithNothingStaged(t *testing.T) {
	store, mock := newMock(t, Postgres)
	require.NoError(t, store.SaveChanges(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SeedsThroughEngine(t *testing.T) {
	store, mock := newMock(t, Postgres)
	s := seed.NewSeeder(store)

	mock.ExpectQuery(`SELECT id, name, region_id FROM rooms WHERE \(name = \$1\)`).
		WithArgs("Lobby").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "region_id"}))
	mock.ExpectQuery(`SELECT id, code FROM regions ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(4, "EU"))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO rooms \(name,region_id\)`).
		WithArgs("Lobby", 4).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	room, err := seed.Seed(context.Background(), s, seed.New[Room]().With("Name", "Lobby"))
	require.NoError(t, err)
	assert.Equal(t, "EU", room.Region.Code, "the existing region is reused")
	assert.Equal(t, 1, room.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver string
		want   Dialect
	}{
		{"pgx", Postgres},
		{"postgres", Postgres},
		{"sqlite3", SQLite},
		{"mysql", MySQL},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := DialectFor(tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.Returning, got.Returning)
		})
	}
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = withTransaction(context.Background(), db, func(*sql.Tx) error { panic("boom") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
