package models

// Record is one document of a collection as stored remotely.
//
// ScopeID is empty for legacy records created before projects existed.
// Order is nil for records that were never reordered; they sort last.
type Record struct {
	ID      string `json:"id"`
	ScopeID string `json:"projectId,omitempty"`
	Order   *int   `json:"order,omitempty"`
	Fields  Fields `json:"fields,omitempty"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{ID: r.ID, ScopeID: r.ScopeID, Fields: r.Fields.Clone()}
	if r.Order != nil {
		out.Order = IntPtr(*r.Order)
	}
	return out
}

// Label returns the value of the collection's primary label field.
func (r Record) Label(c Collection) string {
	return r.Fields.String(c.LabelField)
}

// IDs lists record ids in order.
func IDs(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// Find returns the record with the given id.
func Find(records []Record, id string) (Record, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

func IntPtr(i int) *int { return &i }

func StringPtr(s string) *string { return &s }
