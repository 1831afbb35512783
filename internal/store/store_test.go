package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rosterbench/rosterbench/internal/config"
	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	f, err := os.CreateTemp("", "store_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	cfg := config.DefaultConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = path

	st, err := Open(context.Background(), cfg)
	if err != nil {
		os.Remove(path)
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
		os.Remove(path)
	})

	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return st
}

func mustPerson(t *testing.T, name, birth string, gender types.Gender) types.Person {
	t.Helper()
	d, err := types.ParseBirthDate(birth)
	if err != nil {
		t.Fatalf("failed to parse date %q: %v", birth, err)
	}
	return types.Person{FullName: name, BirthDate: d, Gender: gender}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	st := newTestStore(t)

	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
}

func TestInsertPerson(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p := mustPerson(t, "Zvanov Petr Sergeevich", "2009-07-12", types.GenderFemale)
	id1, err := st.InsertPerson(ctx, p)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if id1 < 1 {
		t.Errorf("expected positive id, got %d", id1)
	}

	id2, err := st.InsertPerson(ctx, mustPerson(t, "Smith John Ivanovich", "1985-03-02", types.GenderMale))
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if id2 != id1+1 {
		t.Errorf("expected autoincremented id %d, got %d", id1+1, id2)
	}
}

func TestInsertPersonValidation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		person   types.Person
		wantCode string
	}{
		{
			name:     "empty name",
			person:   types.Person{FullName: "", BirthDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), Gender: types.GenderMale},
			wantCode: rerrors.CodeEmptyName,
		},
		{
			name:     "birth date before 1900",
			person:   types.Person{FullName: "Smith John", BirthDate: time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC), Gender: types.GenderMale},
			wantCode: rerrors.CodeInvalidDate,
		},
		{
			name:     "unknown gender",
			person:   types.Person{FullName: "Smith John", BirthDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), Gender: types.Gender("Other")},
			wantCode: rerrors.CodeInvalidGender,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := st.InsertPerson(ctx, tt.person)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if got := rerrors.GetCategory(err); got != rerrors.ErrCategoryValidation {
				t.Errorf("expected validation category, got %s", got)
			}
			if got := rerrors.GetCode(err); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}

	n, err := st.CountPersons(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty table after rejected inserts, got %d rows", n)
	}
}

func TestInsertChunkAtomic(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// A row violating the gender CHECK constraint aborts the whole chunk.
	bad := []types.Person{
		mustPerson(t, "Smith John Ivanovich", "1985-03-02", types.GenderMale),
		mustPerson(t, "Jones Jane Petrovna", "1992-11-20", types.GenderFemale),
		{FullName: "Davis Pat", BirthDate: time.Date(1970, 6, 1, 0, 0, 0, 0, time.UTC), Gender: types.Gender("Unknown")},
	}
	err := st.InsertChunk(ctx, bad)
	if err == nil {
		t.Fatal("expected constraint failure, got nil")
	}
	if got := rerrors.GetCategory(err); got != rerrors.ErrCategoryIntegrity {
		t.Errorf("expected integrity category, got %s", got)
	}

	n, err := st.CountPersons(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected rollback to leave 0 rows, got %d", n)
	}

	good := []types.Person{
		mustPerson(t, "Smith John Ivanovich", "1985-03-02", types.GenderMale),
		mustPerson(t, "Jones Jane Petrovna", "1992-11-20", types.GenderFemale),
		mustPerson(t, "Garcia Alex Nikolaevich", "2001-08-15", types.GenderMale),
	}
	if err := st.InsertChunk(ctx, good); err != nil {
		t.Fatalf("valid chunk failed: %v", err)
	}

	n, err = st.CountPersons(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != int64(len(good)) {
		t.Errorf("expected %d rows, got %d", len(good), n)
	}
}

func TestInsertChunkEmpty(t *testing.T) {
	st := newTestStore(t)

	if err := st.InsertChunk(context.Background(), nil); err != nil {
		t.Fatalf("empty chunk should be a no-op, got %v", err)
	}
}

func TestListDistinct(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rows := []types.Person{
		mustPerson(t, "Smith John Ivanovich", "1985-03-02", types.GenderMale),
		mustPerson(t, "Smith John Ivanovich", "1985-03-02", types.GenderMale),
		mustPerson(t, "Brown Sam Petrovich", "1990-01-01", types.GenderMale),
		mustPerson(t, "Smith John Ivanovich", "1990-01-01", types.GenderMale),
	}
	if err := st.InsertChunk(ctx, rows); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	distinct, err := st.ListDistinct(ctx)
	if err != nil {
		t.Fatalf("list distinct failed: %v", err)
	}
	if len(distinct) != 3 {
		t.Fatalf("expected 3 distinct rows, got %d", len(distinct))
	}
	if distinct[0].FullName != "Brown Sam Petrovich" {
		t.Errorf("expected name-ordered output, got %q first", distinct[0].FullName)
	}
	if distinct[1].FullName != "Smith John Ivanovich" || distinct[2].FullName != "Smith John Ivanovich" {
		t.Errorf("unexpected ordering: %q, %q", distinct[1].FullName, distinct[2].FullName)
	}
	if !distinct[1].BirthDate.Before(distinct[2].BirthDate) {
		t.Errorf("expected birth date tiebreak ordering, got %s then %s",
			distinct[1].BirthDateString(), distinct[2].BirthDateString())
	}

	want := time.Date(1985, 3, 2, 0, 0, 0, 0, time.UTC)
	if !distinct[1].BirthDate.Equal(want) {
		t.Errorf("birth date round-trip mismatch: want %s, got %s", want, distinct[1].BirthDate)
	}

	count, err := st.RunDistinct(ctx)
	if err != nil {
		t.Fatalf("run distinct failed: %v", err)
	}
	if count != len(distinct) {
		t.Errorf("RunDistinct count %d != ListDistinct len %d", count, len(distinct))
	}
}

func TestQueryByCriteria(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rows := []types.Person{
		mustPerson(t, "Fisher John Sergeevich", "1980-05-05", types.GenderMale),
		mustPerson(t, "Ford Alex Ivanovich", "1975-02-10", types.GenderMale),
		mustPerson(t, "Fisher Jane Sergeevna", "1988-09-09", types.GenderFemale),
		mustPerson(t, "Smith Chris Petrovich", "1995-12-01", types.GenderMale),
	}
	if err := st.InsertChunk(ctx, rows); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := st.QueryByCriteria(ctx, types.GenderMale, "F")
	if err != nil {
		t.Fatalf("criteria query failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	if got[0].FullName != "Fisher John Sergeevich" || got[1].FullName != "Ford Alex Ivanovich" {
		t.Errorf("unexpected match set or order: %q, %q", got[0].FullName, got[1].FullName)
	}
	for _, p := range got {
		if p.Gender != types.GenderMale {
			t.Errorf("criteria leaked gender %s", p.Gender)
		}
	}

	count, err := st.RunCriteria(ctx, types.GenderMale, "F")
	if err != nil {
		t.Fatalf("run criteria failed: %v", err)
	}
	if count != len(got) {
		t.Errorf("RunCriteria count %d != QueryByCriteria len %d", count, len(got))
	}
}

func TestDeleteAll(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rows := []types.Person{
		mustPerson(t, "Smith John Ivanovich", "1985-03-02", types.GenderMale),
		mustPerson(t, "Jones Jane Petrovna", "1992-11-20", types.GenderFemale),
	}
	if err := st.InsertChunk(ctx, rows); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	deleted, err := st.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("delete all failed: %v", err)
	}
	if deleted != int64(len(rows)) {
		t.Errorf("expected %d deleted, got %d", len(rows), deleted)
	}

	n, err := st.CountPersons(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty table, got %d rows", n)
	}

	// Deleting an empty table reports zero, not an error.
	deleted, err = st.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("second delete all failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 deleted on empty table, got %d", deleted)
	}

	// Schema survives the flush.
	if _, err := st.InsertPerson(ctx, rows[0]); err != nil {
		t.Fatalf("insert after flush failed: %v", err)
	}
}

func TestIndexLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	indexes, err := st.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("list indexes failed: %v", err)
	}
	if len(indexes) != 0 {
		t.Fatalf("expected no secondary indexes on a fresh table, got %d", len(indexes))
	}

	if err := st.CreateIndex(ctx, "idx_persons_full_name", []string{"full_name"}); err != nil {
		t.Fatalf("create index failed: %v", err)
	}
	// Repeating the same statement is a no-op.
	if err := st.CreateIndex(ctx, "idx_persons_full_name", []string{"full_name"}); err != nil {
		t.Fatalf("repeated create index failed: %v", err)
	}

	cols := []string{"full_name", "birth_date", "gender"}
	if err := st.CreateIndex(ctx, "idx_persons_composite", cols); err != nil {
		t.Fatalf("create composite index failed: %v", err)
	}

	indexes, err = st.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("list indexes failed: %v", err)
	}
	if len(indexes) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(indexes))
	}

	found := make(map[string][]string, len(indexes))
	for _, info := range indexes {
		found[info.Name] = info.Columns
	}
	if got := found["idx_persons_full_name"]; len(got) != 1 || got[0] != "full_name" {
		t.Errorf("unexpected columns for single index: %v", got)
	}
	got := found["idx_persons_composite"]
	if len(got) != len(cols) {
		t.Fatalf("expected %d columns, got %v", len(cols), got)
	}
	for i, col := range cols {
		if got[i] != col {
			t.Errorf("column order mismatch at %d: want %s, got %s", i, col, got[i])
		}
	}

	if err := st.DropIndex(ctx, "idx_persons_composite"); err != nil {
		t.Fatalf("drop index failed: %v", err)
	}
	if err := st.DropIndex(ctx, "idx_persons_composite"); err != nil {
		t.Fatalf("repeated drop index failed: %v", err)
	}

	indexes, err = st.ListIndexes(ctx)
	if err != nil {
		t.Fatalf("list indexes failed: %v", err)
	}
	if len(indexes) != 1 || indexes[0].Name != "idx_persons_full_name" {
		t.Errorf("unexpected indexes after drop: %+v", indexes)
	}
}

func TestCreateIndexRejectsBadIdentifiers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		idxName string
		columns []string
	}{
		{"unknown column", "idx_persons_nope", []string{"nope"}},
		{"empty columns", "idx_persons_empty", nil},
		{"injection in column", "idx_persons_bad", []string{"full_name; DROP TABLE persons"}},
		{"bad index name", "idx persons", []string{"full_name"}},
		{"leading digit", "1idx", []string{"full_name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := st.CreateIndex(ctx, tt.idxName, tt.columns)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if got := rerrors.GetCategory(err); got != rerrors.ErrCategoryValidation {
				t.Errorf("expected validation category, got %s", got)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.InsertPerson(ctx, mustPerson(t, "Smith John Ivanovich", "1985-03-02", types.GenderMale)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := st.Analyze(ctx); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
}
