package stats

import "fmt"

// ResourceType tags the class resource pool.
type ResourceType string

const (
	Mana   ResourceType = "mana"
	Rage   ResourceType = "rage"
	Energy ResourceType = "energy"
	Focus  ResourceType = "focus"
	Souls  ResourceType = "souls"
)

// Valid reports whether t is one of the known resource types.
func (t ResourceType) Valid() bool {
	switch t {
	case Mana, Rage, Energy, Focus, Souls:
		return true
	}
	return false
}

// Resource is a bounded pool.
//
// Invariant: 0 <= Current <= Max.
type Resource struct {
	Type    ResourceType `yaml:"type" json:"type"`
	Current int          `yaml:"current" json:"current"`
	Max     int          `yaml:"max" json:"max"`
}

// NewResource returns a full pool of the given type.
//
// Precondition: max >= 0.
func NewResource(t ResourceType, max int) Resource {
	return Resource{Type: t, Current: max, Max: max}
}

// CanAfford reports whether the pool is of type t and holds at least n.
// A zero cost is always affordable.
func (r Resource) CanAfford(t ResourceType, n int) bool {
	if n <= 0 {
		return true
	}
	return r.Type == t && r.Current >= n
}

// Spend deducts n after checking affordability.
//
// Postcondition: on error the pool is unchanged; otherwise Current decreased by n.
func (r *Resource) Spend(t ResourceType, n int) error {
	if !r.CanAfford(t, n) {
		return Reject(ReasonInsufficientResource, "need %d %s, have %d %s", n, t, r.Current, r.Type)
	}
	if n > 0 {
		r.Current -= n
	}
	return nil
}

// Restore adds n, clamped to Max, and returns the amount actually added.
//
// Postcondition: 0 <= Current <= Max.
func (r *Resource) Restore(n int) int {
	if n <= 0 {
		return 0
	}
	before := r.Current
	r.Current = Clamp(r.Current+n, 0, r.Max)
	return r.Current - before
}

// Drain removes n, flooring at 0, and returns the amount actually removed.
//
// Postcondition: 0 <= Current <= Max.
func (r *Resource) Drain(n int) int {
	if n <= 0 {
		return 0
	}
	before := r.Current
	r.Current = Clamp(r.Current-n, 0, r.Max)
	return before - r.Current
}

// String renders the pool as "12/40 mana".
func (r Resource) String() string {
	return fmt.Sprintf("%d/%d %s", r.Current, r.Max, r.Type)
}
