// Package graph models the artifact dependency DAG: nodes to build, their
// requires/produces relationships, and the deterministic wave layering the
// executor drives.
package graph

// DomainType is a free-form tag describing what kind of artifact this is
// (e.g. "protocol", "service").
type DomainType string

// Artifact is an immutable node in the plan.
type Artifact struct {
	ID            string
	Description   string
	Produces      []string
	Requires      []string
	Modifies      []string
	ProducesFile  string
	DomainType    DomainType
	IsContract    bool
	ParallelGroup string
}

// clone returns a defensive copy of slice fields so a caller's later
// mutation of the artifact they added can't corrupt graph state.
func (a Artifact) clone() Artifact {
	a.Produces = append([]string(nil), a.Produces...)
	a.Requires = append([]string(nil), a.Requires...)
	a.Modifies = append([]string(nil), a.Modifies...)
	return a
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// requiresProducesDisjoint checks that an artifact never requires
// something it also produces.
func requiresProducesDisjoint(a Artifact) bool {
	for _, r := range a.Requires {
		if contains(a.Produces, r) {
			return false
		}
	}
	return true
}
