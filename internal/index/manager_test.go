package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/spaolacci/murmur3"

	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/internal/store"
)

type fakeCatalog struct {
	indexes []store.IndexInfo
	creates int
	drops   int
}

func (f *fakeCatalog) ListIndexes(_ context.Context) ([]store.IndexInfo, error) {
	return append([]store.IndexInfo(nil), f.indexes...), nil
}

func (f *fakeCatalog) CreateIndex(_ context.Context, name string, columns []string) error {
	f.creates++
	f.indexes = append(f.indexes, store.IndexInfo{
		Name:    name,
		Columns: append([]string(nil), columns...),
	})
	return nil
}

func (f *fakeCatalog) DropIndex(_ context.Context, name string) error {
	f.drops++
	kept := f.indexes[:0]
	for _, info := range f.indexes {
		if info.Name != name {
			kept = append(kept, info)
		}
	}
	f.indexes = kept
	return nil
}

func TestNameDerivation(t *testing.T) {
	if got := Name([]string{"full_name"}); got != "idx_persons_full_name" {
		t.Errorf("unexpected single-column name: %s", got)
	}
	if got := Name([]string{" Gender "}); got != "idx_persons_gender" {
		t.Errorf("expected normalized name, got %s", got)
	}

	cols := []string{"full_name", "birth_date", "gender"}
	want := fmt.Sprintf("idx_persons_m%08x", murmur3.Sum32([]byte("full_name,birth_date,gender")))
	if got := Name(cols); got != want {
		t.Errorf("composite name mismatch: want %s, got %s", want, got)
	}
	if Name(cols) != Name(cols) {
		t.Error("composite names must be deterministic")
	}
	if Name(cols) == Name([]string{"gender", "birth_date", "full_name"}) {
		t.Error("column order must change the composite name")
	}
}

func TestSignature(t *testing.T) {
	if got := Signature([]string{" Full_Name ", "GENDER"}); got != "full_name,gender" {
		t.Errorf("unexpected signature: %s", got)
	}
	if Signature([]string{"a", "b"}) == Signature([]string{"b", "a"}) {
		t.Error("signature must preserve order")
	}
}

func TestEnsureCreates(t *testing.T) {
	cat := &fakeCatalog{}
	m := New(cat)

	idx, created, err := m.Ensure(context.Background(), "", []string{"full_name", "birth_date", "gender"})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if !created {
		t.Error("expected a new index")
	}
	if cat.creates != 1 {
		t.Errorf("expected 1 create, got %d", cat.creates)
	}
	if idx.Name != Name([]string{"full_name", "birth_date", "gender"}) {
		t.Errorf("unexpected name %s", idx.Name)
	}
	if idx.Signature != "full_name,birth_date,gender" {
		t.Errorf("unexpected signature %s", idx.Signature)
	}
}

func TestEnsureIdempotent(t *testing.T) {
	cat := &fakeCatalog{}
	m := New(cat)
	ctx := context.Background()

	if _, created, err := m.Ensure(ctx, "", []string{"gender"}); err != nil || !created {
		t.Fatalf("first ensure: created=%v err=%v", created, err)
	}
	idx, created, err := m.Ensure(ctx, "", []string{"gender"})
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if created {
		t.Error("repeated ensure must not create")
	}
	if idx.Name != "idx_persons_gender" {
		t.Errorf("unexpected name %s", idx.Name)
	}
	if cat.creates != 1 {
		t.Errorf("expected exactly 1 create, got %d", cat.creates)
	}
}

func TestEnsureIdempotentBySignature(t *testing.T) {
	// An equivalent index under a legacy name already covers the columns.
	cat := &fakeCatalog{indexes: []store.IndexInfo{
		{Name: "idx_gender_legacy", Columns: []string{"gender"}},
	}}
	m := New(cat)

	idx, created, err := m.Ensure(context.Background(), "", []string{"gender"})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if created {
		t.Error("expected no create for an already-covered signature")
	}
	if idx.Name != "idx_gender_legacy" {
		t.Errorf("expected the covering index name, got %s", idx.Name)
	}
	if cat.creates != 0 {
		t.Errorf("expected 0 creates, got %d", cat.creates)
	}
}

func TestEnsureNameConflict(t *testing.T) {
	cat := &fakeCatalog{indexes: []store.IndexInfo{
		{Name: "idx_persons_gender", Columns: []string{"birth_date"}},
	}}
	m := New(cat)

	_, _, err := m.Ensure(context.Background(), "", []string{"gender"})
	if err == nil {
		t.Fatal("expected a name conflict")
	}
	if got := rerrors.GetCategory(err); got != rerrors.ErrCategoryIntegrity {
		t.Errorf("expected integrity category, got %s", got)
	}
	if got := rerrors.GetCode(err); got != rerrors.CodeIndexConflict {
		t.Errorf("expected code %s, got %s", rerrors.CodeIndexConflict, got)
	}
	details := rerrors.GetDetails(err)
	if details == nil || details["index"] != "idx_persons_gender" {
		t.Errorf("unexpected details: %v", details)
	}
	if cat.creates != 0 {
		t.Errorf("conflict must not create, got %d creates", cat.creates)
	}
}

func TestEnsureRejectsUnknownColumn(t *testing.T) {
	m := New(&fakeCatalog{})

	_, _, err := m.Ensure(context.Background(), "", []string{"salary"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := rerrors.GetCategory(err); got != rerrors.ErrCategoryValidation {
		t.Errorf("expected validation category, got %s", got)
	}
}

func TestDropByName(t *testing.T) {
	cat := &fakeCatalog{indexes: []store.IndexInfo{
		{Name: "idx_persons_gender", Columns: []string{"gender"}},
	}}
	m := New(cat)
	ctx := context.Background()

	dropped, err := m.Drop(ctx, "idx_persons_gender", nil)
	if err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if !dropped {
		t.Error("expected a drop")
	}

	dropped, err = m.Drop(ctx, "idx_persons_gender", nil)
	if err != nil {
		t.Fatalf("repeated drop failed: %v", err)
	}
	if dropped {
		t.Error("dropping an absent index must be a no-op")
	}
	if cat.drops != 1 {
		t.Errorf("expected 1 drop call, got %d", cat.drops)
	}
}

func TestDropBySignature(t *testing.T) {
	cat := &fakeCatalog{indexes: []store.IndexInfo{
		{Name: "idx_gender_legacy", Columns: []string{"gender"}},
	}}
	m := New(cat)

	dropped, err := m.Drop(context.Background(), "", []string{"Gender"})
	if err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if !dropped {
		t.Error("expected signature match to drop the legacy index")
	}
	if len(cat.indexes) != 0 {
		t.Errorf("expected empty catalog, got %+v", cat.indexes)
	}
}

func TestDropNeedsNameOrColumns(t *testing.T) {
	m := New(&fakeCatalog{})

	_, err := m.Drop(context.Background(), "", nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := rerrors.GetCategory(err); got != rerrors.ErrCategoryValidation {
		t.Errorf("expected validation category, got %s", got)
	}
}

func TestState(t *testing.T) {
	cat := &fakeCatalog{indexes: []store.IndexInfo{
		{Name: "idx_persons_gender", Columns: []string{"gender"}},
		{Name: "idx_persons_birth_date", Columns: []string{"birth_date"}},
	}}
	m := New(cat)

	names, err := m.State(context.Background())
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	if len(names) != 2 || names[0] != "idx_persons_birth_date" || names[1] != "idx_persons_gender" {
		t.Errorf("expected sorted names, got %v", names)
	}
}
