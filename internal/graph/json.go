package graph

import "encoding/json"

// wireArtifact is the JSON wire shape for an Artifact, decoupled from
// the internal struct so field renames don't break serialized plans.
type wireArtifact struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Produces      []string `json:"produces,omitempty"`
	Requires      []string `json:"requires,omitempty"`
	Modifies      []string `json:"modifies,omitempty"`
	ProducesFile  string   `json:"produces_file,omitempty"`
	DomainType    string   `json:"domain_type,omitempty"`
	IsContract    bool     `json:"is_contract,omitempty"`
	ParallelGroup string   `json:"parallel_group,omitempty"`
}

type wireGraph struct {
	Artifacts []wireArtifact `json:"artifacts"`
	External  []string       `json:"external,omitempty"`
}

// MarshalJSON renders the graph as its artifacts in insertion order,
// the shape `sunwell plan` prints and `sunwell run --graph-file` reads
// back.
func (g *ArtifactGraph) MarshalJSON() ([]byte, error) {
	w := wireGraph{}
	for _, a := range g.Artifacts() {
		w.Artifacts = append(w.Artifacts, wireArtifact{
			ID:            a.ID,
			Description:   a.Description,
			Produces:      a.Produces,
			Requires:      a.Requires,
			Modifies:      a.Modifies,
			ProducesFile:  a.ProducesFile,
			DomainType:    string(a.DomainType),
			IsContract:    a.IsContract,
			ParallelGroup: a.ParallelGroup,
		})
	}
	for e := range g.external {
		w.External = append(w.External, e)
	}
	return json.Marshal(w)
}

// ParseJSON builds an ArtifactGraph from the wire format produced by
// MarshalJSON (or emitted by a model instructed to produce it).
func ParseJSON(raw []byte) (*ArtifactGraph, error) {
	var w wireGraph
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	g := New(w.External...)
	for _, wa := range w.Artifacts {
		a := Artifact{
			ID:            wa.ID,
			Description:   wa.Description,
			Produces:      wa.Produces,
			Requires:      wa.Requires,
			Modifies:      wa.Modifies,
			ProducesFile:  wa.ProducesFile,
			DomainType:    DomainType(wa.DomainType),
			IsContract:    wa.IsContract,
			ParallelGroup: wa.ParallelGroup,
		}
		if err := g.Add(a); err != nil {
			return nil, err
		}
	}
	return g, nil
}
