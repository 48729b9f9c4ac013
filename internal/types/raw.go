package types

// RawItem is a source-native listing payload: an untyped mapping of field
// name to value, exactly as decoded from a page or detail response. It is
// ephemeral: once normalized into a Record it is discarded.
type RawItem map[string]any

// String returns the field as a string, converting numbers when the source
// encodes ids numerically. Returns "" for missing or non-scalar values.
func (r RawItem) String(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Map returns a nested object field, or nil if missing or not an object.
func (r RawItem) Map(key string) RawItem {
	v, ok := r[key]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return RawItem(m)
}

// List returns a list field, or nil if missing or not a list.
func (r RawItem) List(key string) []any {
	v, ok := r[key]
	if !ok {
		return nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil
	}
	return l
}

// StringList returns a list field with every element rendered as a string.
// Non-scalar elements are skipped.
func (r RawItem) StringList(key string) []string {
	l := r.List(key)
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s := Stringify(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Path walks a chain of nested object keys and returns the object at the
// end, or nil as soon as any hop is missing.
func (r RawItem) Path(keys ...string) RawItem {
	cur := r
	for _, k := range keys {
		cur = cur.Map(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}
