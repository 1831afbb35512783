// Package index manages secondary indexes on the persons table. Index
// identity is the ordered column signature; names are derived from it,
// so the same column set always maps to the same index.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"

	rerrors "github.com/rosterbench/rosterbench/internal/errors"
	"github.com/rosterbench/rosterbench/internal/store"
)

// Catalog is the slice of the store the manager needs. *store.Store
// satisfies this.
type Catalog interface {
	ListIndexes(ctx context.Context) ([]store.IndexInfo, error)
	CreateIndex(ctx context.Context, name string, columns []string) error
	DropIndex(ctx context.Context, name string) error
}

// Index describes one managed index.
type Index struct {
	Name      string
	Columns   []string
	Signature string
}

// Manager creates and drops indexes idempotently.
type Manager struct {
	catalog Catalog
}

// New returns a manager over the given catalog.
func New(catalog Catalog) *Manager {
	return &Manager{catalog: catalog}
}

// Signature canonicalizes a column list: trimmed, lowercased, joined in
// the given order. Order is part of the identity since a composite index
// on (a, b) serves different queries than one on (b, a).
func Signature(columns []string) string {
	normalized := Normalize(columns)
	return strings.Join(normalized, ",")
}

// Normalize trims and lowercases column names, preserving order.
func Normalize(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = strings.ToLower(strings.TrimSpace(col))
	}
	return out
}

// Name derives the index name for a column set. Single-column indexes
// carry the column name; composites hash the signature so the name stays
// short and deterministic for any column combination.
func Name(columns []string) string {
	normalized := Normalize(columns)
	if len(normalized) == 1 {
		return "idx_persons_" + normalized[0]
	}
	return fmt.Sprintf("idx_persons_m%08x", murmur3.Sum32([]byte(Signature(normalized))))
}

// Ensure creates an index over the columns unless an equivalent one
// already exists. An empty name derives one from the columns. The second
// return reports whether a new index was created.
//
// An existing index under the same name but a different column set is a
// conflict: the caller asked for an index the name cannot denote.
func (m *Manager) Ensure(ctx context.Context, name string, columns []string) (Index, bool, error) {
	normalized := Normalize(columns)
	if err := store.ValidateColumns(normalized); err != nil {
		return Index{}, false, err
	}
	sig := Signature(normalized)
	if name == "" {
		name = Name(normalized)
	}

	existing, err := m.catalog.ListIndexes(ctx)
	if err != nil {
		return Index{}, false, err
	}

	for _, info := range existing {
		existingSig := Signature(info.Columns)
		if info.Name == name {
			if existingSig == sig {
				return Index{Name: info.Name, Columns: normalized, Signature: sig}, false, nil
			}
			return Index{}, false, rerrors.NewIntegrityError(rerrors.CodeIndexConflict,
				fmt.Sprintf("index: %s already covers (%s), requested (%s)", name, existingSig, sig),
				nil).WithDetails(map[string]interface{}{
				"index":     name,
				"existing":  existingSig,
				"requested": sig,
			})
		}
		if existingSig == sig {
			// Same columns under another name; nothing to add.
			return Index{Name: info.Name, Columns: normalized, Signature: sig}, false, nil
		}
	}

	if err := m.catalog.CreateIndex(ctx, name, normalized); err != nil {
		return Index{}, false, err
	}
	return Index{Name: name, Columns: normalized, Signature: sig}, true, nil
}

// Drop removes an index by name, or by column signature when the name is
// empty. Dropping an absent index is a no-op; the return reports whether
// anything was removed.
func (m *Manager) Drop(ctx context.Context, name string, columns []string) (bool, error) {
	if name == "" {
		if len(columns) == 0 {
			return false, rerrors.NewValidationError(rerrors.CodeInvalidArgument,
				"index: drop needs a name or a column set")
		}
		sig := Signature(columns)
		existing, err := m.catalog.ListIndexes(ctx)
		if err != nil {
			return false, err
		}
		for _, info := range existing {
			if Signature(info.Columns) == sig {
				name = info.Name
				break
			}
		}
		if name == "" {
			return false, nil
		}
	} else {
		existing, err := m.catalog.ListIndexes(ctx)
		if err != nil {
			return false, err
		}
		found := false
		for _, info := range existing {
			if info.Name == name {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	if err := m.catalog.DropIndex(ctx, name); err != nil {
		return false, err
	}
	return true, nil
}

// State returns the current secondary index names, sorted for stable
// reporting.
func (m *Manager) State(ctx context.Context) ([]string, error) {
	existing, err := m.catalog.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(existing))
	for _, info := range existing {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names, nil
}
