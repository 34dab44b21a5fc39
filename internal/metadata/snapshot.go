// Package metadata holds the inventory of the Splunk deployment (indexes, data models
// and applications) that the server loads at startup and serves to clients.
package metadata

import (
	"slices"
	"sort"

	"github.com/mazrean/splunkmcp/internal/pkg/json"
)

// Snapshot is a point-in-time copy of the backend inventory.
// A published snapshot is never modified.
type Snapshot struct {
	Indexes    []string                     `json:"indexes"`
	DataModels map[string][]json.RawMessage `json:"datamodels"`
	Apps       []string                     `json:"apps"`
}

// Empty returns a snapshot without any entries
func Empty() *Snapshot {
	return &Snapshot{
		Indexes:    []string{},
		DataModels: map[string][]json.RawMessage{},
		Apps:       []string{},
	}
}

// HasDataModel reports whether a data model named name exists. Names are case-sensitive.
func (s *Snapshot) HasDataModel(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.DataModels[name]
	return ok
}

// IndexNames returns the index names in backend order
func (s *Snapshot) IndexNames() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.Indexes)
}

// DataModelNames returns the data model names sorted
func (s *Snapshot) DataModelNames() []string {
	if s == nil {
		return nil
	}

	names := make([]string, 0, len(s.DataModels))
	for name := range s.DataModels {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
