package model

import (
	"encoding/json"
	"fmt"
)

// State is the synchronization state of a locally held record.
//
//	LocalNew ──create-push──▶ Synced ◀──push──▶ LocallyDirty
//	                             │                  │
//	                             └────delete────▶ Tombstoned ──delete-push──▶ (purged)
type State int

const (
	StateLocalNew State = iota + 1
	StateSynced
	StateLocallyDirty
	StateTombstoned
)

func (s State) String() string {
	switch s {
	case StateLocalNew:
		return "local_new"
	case StateSynced:
		return "synced"
	case StateLocallyDirty:
		return "locally_dirty"
	case StateTombstoned:
		return "tombstoned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "local_new":
		*s = StateLocalNew
	case "synced":
		*s = StateSynced
	case "locally_dirty":
		*s = StateLocallyDirty
	case "tombstoned":
		*s = StateTombstoned
	default:
		return fmt.Errorf("unknown record state %q", b)
	}
	return nil
}

// Record is a task as held in the device's local store.
type Record struct {
	ID          ClientID  `json:"clientId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Location    *Location `json:"location"`
	Photo       *string   `json:"photo"`
	CreatedAt   int64     `json:"createdAt"`
	State       State     `json:"state"`
	// Rev is bumped by every local mutation.
	Rev uint64 `json:"rev"`
}

// Dirty reports whether the record has mutations the server has not acknowledged.
func (r Record) Dirty() bool {
	return r.State != StateSynced
}

// Deleted reports whether the record is a tombstone.
func (r Record) Deleted() bool {
	return r.State == StateTombstoned
}

// ServerID returns the server id for server-mirrored records.
func (r Record) ServerID() (int64, bool) {
	return r.ID.ServerID()
}

// Input returns the user-editable fields of the record.
func (r Record) Input() TaskInput {
	return TaskInput{
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		Location:    r.Location,
		Photo:       r.Photo,
	}
}

// SetInput overwrites the user-editable fields of the record.
func (r *Record) SetInput(in TaskInput) {
	r.Title = in.Title
	r.Description = in.Description
	r.Completed = in.Completed
	r.Location = in.Location
	r.Photo = in.Photo
}

// Validate checks the structural invariants of a record.
func (r Record) Validate() error {
	switch {
	case r.ID.IsZero():
		return fmt.Errorf("%w: empty", ErrInvalidClientID)
	case r.ID.IsLocal() && r.State != StateLocalNew:
		return fmt.Errorf("record %s: local records must be %s, got %s", r.ID, StateLocalNew, r.State)
	case r.ID.IsRemote() && r.State == StateLocalNew:
		return fmt.Errorf("record %s: server records cannot be %s", r.ID, StateLocalNew)
	case r.State < StateLocalNew || r.State > StateTombstoned:
		return fmt.Errorf("record %s: invalid state %s", r.ID, r.State)
	}
	return nil
}

// FromServer builds a clean local mirror of a server task.
func FromServer(t Task) Record {
	return Record{
		ID:          RemoteID(t.ID),
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Location:    t.Location,
		Photo:       t.Photo,
		CreatedAt:   t.CreatedAt,
		State:       StateSynced,
	}
}

// recordJSON mirrors Record on the wire and adds the derived flags for readers
// that only understand the dirty/deleted/serverId fields.
type recordJSON struct {
	ID          ClientID  `json:"clientId"`
	ServerID    *int64    `json:"serverId,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Location    *Location `json:"location"`
	Photo       *string   `json:"photo"`
	CreatedAt   int64     `json:"createdAt"`
	State       State     `json:"state"`
	Dirty       bool      `json:"dirty"`
	Deleted     bool      `json:"deleted"`
	Rev         uint64    `json:"rev"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		Location:    r.Location,
		Photo:       r.Photo,
		CreatedAt:   r.CreatedAt,
		State:       r.State,
		Dirty:       r.Dirty(),
		Deleted:     r.Deleted(),
		Rev:         r.Rev,
	}
	if id, ok := r.ServerID(); ok {
		out.ServerID = &id
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var in recordJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = Record{
		ID:          in.ID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
		Location:    in.Location,
		Photo:       in.Photo,
		CreatedAt:   in.CreatedAt,
		State:       in.State,
		Rev:         in.Rev,
	}
	return nil
}
