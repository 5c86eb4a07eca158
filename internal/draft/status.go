package draft

// State is the reconciliation state of a draft.
type State int

const (
	// Clean drafts mirror the remote record and adopt every snapshot.
	Clean State = iota
	// Dirty drafts hold local edits that the remote has not confirmed yet.
	Dirty
)

func (s State) String() string {
	if s == Dirty {
		return "dirty"
	}
	return "clean"
}

// SaveStatus is the transient save indicator of a draft.
type SaveStatus int

const (
	StatusIdle SaveStatus = iota
	StatusSaving
	StatusSaved
	StatusError
)

func (s SaveStatus) String() string {
	switch s {
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}
