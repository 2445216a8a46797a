package objectstore

// Tag is a single object tag.
type Tag struct {
	Key   string
	Value string
}

// TagSet is an ordered list of tags with at most one value per key.
// Order is preserved across Upsert so a written-back set only differs from
// what was read by the upserted entry.
type TagSet []Tag

// Get returns the value stored under key.
func (ts TagSet) Get(key string) (string, bool) {
	for _, t := range ts {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Upsert returns a copy of ts with key set to value, replacing the existing
// entry in place or appending a new one.
func (ts TagSet) Upsert(key, value string) TagSet {
	out := make(TagSet, len(ts), len(ts)+1)
	copy(out, ts)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Tag{Key: key, Value: value})
}

// Map returns the tags as a map.
func (ts TagSet) Map() map[string]string {
	m := make(map[string]string, len(ts))
	for _, t := range ts {
		m[t.Key] = t.Value
	}
	return m
}
