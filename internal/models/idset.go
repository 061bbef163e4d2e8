package models

import (
	"encoding/json"
	"sort"
)

// IDSet is an immutable set of identifiers. Every mutating method returns a
// new set; the receiver is never modified, so a set held by a committed
// snapshot can be shared freely.
type IDSet struct {
	members map[string]struct{}
}

// NewIDSet builds a set from the given ids, ignoring empty strings and duplicates.
func NewIDSet(ids ...string) IDSet {
	members := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		members[id] = struct{}{}
	}
	return IDSet{members: members}
}

// Has reports whether id is a member.
func (s IDSet) Has(id string) bool {
	_, ok := s.members[id]
	return ok
}

// Len returns the number of members.
func (s IDSet) Len() int {
	return len(s.members)
}

// IsEmpty reports whether the set has no members.
func (s IDSet) IsEmpty() bool {
	return len(s.members) == 0
}

// With returns a copy of the set including id.
func (s IDSet) With(id string) IDSet {
	if id == "" || s.Has(id) {
		return s
	}
	next := s.clone(len(s.members) + 1)
	next.members[id] = struct{}{}
	return next
}

// Without returns a copy of the set excluding id.
func (s IDSet) Without(id string) IDSet {
	if !s.Has(id) {
		return s
	}
	next := s.clone(len(s.members))
	delete(next.members, id)
	return next
}

// Toggle adds id when absent and removes it when present. The decision is
// taken from membership alone, so two consecutive toggles restore the set.
func (s IDSet) Toggle(id string) IDSet {
	if s.Has(id) {
		return s.Without(id)
	}
	return s.With(id)
}

// Union returns the members of both sets.
func (s IDSet) Union(other IDSet) IDSet {
	next := s.clone(len(s.members) + len(other.members))
	for id := range other.members {
		next.members[id] = struct{}{}
	}
	return next
}

// Slice returns the members in sorted order.
func (s IDSet) Slice() []string {
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same members.
func (s IDSet) Equal(other IDSet) bool {
	if len(s.members) != len(other.members) {
		return false
	}
	for id := range s.members {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

func (s IDSet) clone(capacity int) IDSet {
	members := make(map[string]struct{}, capacity)
	for id := range s.members {
		members[id] = struct{}{}
	}
	return IDSet{members: members}
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a JSON array, dropping duplicates.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// RefSet builds a set of ContentRef keys. Post and idea ids may collide, so
// per-item state such as "seen" is keyed by type and id.
func RefSet(refs ...ContentRef) IDSet {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, ref.Key())
	}
	return NewIDSet(keys...)
}
