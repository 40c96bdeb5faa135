package query

// Tagged pairs a key or filter with the origin that produced it.
type Tagged[T any] struct {
	Value  T
	Origin Origin
}

// Tag attaches origin to v.
func Tag[T any](v T, origin Origin) Tagged[T] {
	return Tagged[T]{Value: v, Origin: origin}
}

// TaggedKeyEqual compares keys structurally and origins by kind.
func TaggedKeyEqual(a, b Tagged[Key]) bool {
	return KeyEqual(a.Value, b.Value) && OriginEqual(a.Origin, b.Origin)
}

// TaggedFilterEqual compares filters structurally and origins by kind.
func TaggedFilterEqual(a, b Tagged[Filter]) bool {
	return FilterEqual(a.Value, b.Value) && OriginEqual(a.Origin, b.Origin)
}

// DedupKeys drops keys equal to an earlier key, keeping first occurrences in order.
func DedupKeys(keys []Tagged[Key]) []Tagged[Key] {
	out := make([]Tagged[Key], 0, len(keys))
	for _, k := range keys {
		dup := false
		for _, seen := range out {
			if TaggedKeyEqual(seen, k) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}
