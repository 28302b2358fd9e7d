package model

// Instance is a single entity value keyed by field name. Values are whatever
// the storage collaborator produced for the column's semantic kind; relation
// resolution attaches related instances (or slices of them) under the
// relation's name.
type Instance map[string]any

// Clone returns a shallow copy. Attached relation values are shared.
func (in Instance) Clone() Instance {
	if in == nil {
		return nil
	}
	out := make(Instance, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// StringID reads the named field as a string id. Missing or non-string
// values yield "".
func (in Instance) StringID(field string) string {
	if v, ok := in[field].(string); ok {
		return v
	}
	return ""
}

// CloneAll copies a result set so hooks can enrich rows without aliasing
// store-owned memory.
func CloneAll(items []Instance) []Instance {
	if items == nil {
		return nil
	}
	out := make([]Instance, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
