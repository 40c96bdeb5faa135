package query

import (
	"hash/fnv"
	"maps"
	"slices"
)

// OriginKind discriminates Origin variants.
type OriginKind int

// Origin kinds.
const (
	OriginRequested OriginKind = iota + 1
	OriginSorting
	OriginFiltering
)

// String returns the kind name.
func (k OriginKind) String() string {
	switch k {
	case OriginRequested:
		return "requested"
	case OriginSorting:
		return "sorting"
	case OriginFiltering:
		return "filtering"
	default:
		return "unknown"
	}
}

// Origin records why a key, filter or selected field is part of a plan.
//
// Origins are provenance markers, not values: two origins are equal when
// they have the same kind, whatever payload they carry. This keeps origins
// from splitting otherwise identical keys and filters during deduplication.
//
// The interface is sealed; Requested, Sorting and Filtering are the only
// implementations.
type Origin interface {
	Kind() OriginKind
	// Equal reports whether other has the same kind.
	Equal(other Origin) bool
	origin()
}

type requested struct{}

// Requested returns the origin of constraints supplied explicitly by the caller.
func Requested() Origin { return requested{} }

func (requested) Kind() OriginKind { return OriginRequested }
func (requested) Equal(other Origin) bool { return OriginEqual(requested{}, other) }
func (requested) origin() {}
func (requested) String() string { return "requested" }

// Sorting marks constraints generated to support sorting.
type Sorting struct {
	sortCriteria      []SortCriteria
	fieldPathAliasMap map[string]string
}

// NewSorting returns a Sorting origin. criteria must not be nil.
// The inputs are copied.
func NewSorting(criteria []SortCriteria, fieldPathAliasMap map[string]string) Sorting {
	if criteria == nil {
		panic("query: NewSorting requires sort criteria")
	}
	return Sorting{
		sortCriteria:      slices.Clone(criteria),
		fieldPathAliasMap: maps.Clone(fieldPathAliasMap),
	}
}

// SortCriteria returns a copy of the criteria that produced this origin.
func (s Sorting) SortCriteria() []SortCriteria { return slices.Clone(s.sortCriteria) }

// FieldPathAliasMap returns a copy of the field path to alias mapping.
func (s Sorting) FieldPathAliasMap() map[string]string { return maps.Clone(s.fieldPathAliasMap) }

func (Sorting) Kind() OriginKind { return OriginSorting }
func (s Sorting) Equal(other Origin) bool { return OriginEqual(s, other) }
func (Sorting) origin() {}
func (Sorting) String() string { return "sorting" }

// Filtering marks constraints generated by filter argument expansion.
type Filtering struct {
	filterCriteria Filter
}

// NewFiltering returns a Filtering origin. criteria must not be nil.
func NewFiltering(criteria Filter) Filtering {
	if criteria == nil {
		panic("query: NewFiltering requires filter criteria")
	}
	return Filtering{filterCriteria: criteria}
}

// FilterCriteria returns the filter that produced this origin.
func (f Filtering) FilterCriteria() Filter { return f.filterCriteria }

func (Filtering) Kind() OriginKind { return OriginFiltering }
func (f Filtering) Equal(other Origin) bool { return OriginEqual(f, other) }
func (Filtering) origin() {}
func (Filtering) String() string { return "filtering" }

// OriginEqual reports whether a and b have the same kind. Payloads are ignored.
// Two nil origins are equal.
func OriginEqual(a, b Origin) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind()
}

// OriginHash returns a hash that depends only on the kind of o.
func OriginHash(o Origin) uint64 {
	h := fnv.New64a()
	if o != nil {
		_, _ = h.Write([]byte(o.Kind().String()))
	}
	return h.Sum64()
}
