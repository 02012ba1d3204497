package models

import "time"

// Counter names tracked in the activity document. The keys match the
// document layout shipped to clients, so they stay camelCase.
const (
	CounterExecutionsRun     = "executionsRun"
	CounterVisualizationsRun = "visualizationsRun"
	CounterAIExplain         = "aiExplain"
	CounterAIDebug           = "aiDebug"
	CounterSnippetsCreated   = "snippetsCreated"
	CounterSessionsJoined    = "sessionsJoined"
)

// Profile holds the locally stored user profile.
type Profile struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// ActivityStats is the flat counter map plus the last-activity timestamp.
// Counters only ever grow, except on an explicit reset.
type ActivityStats struct {
	Counters     map[string]int `json:"counters"`
	LastActiveAt time.Time      `json:"lastActiveAt"`
}

// ActivityDocument is the aggregate persisted as one serialized document
// under one storage key. There is no version field: a reader that finds an
// unrecognized shape falls back to DefaultDocument rather than failing.
type ActivityDocument struct {
	Profile  Profile       `json:"profile"`
	Snippets []Snippet     `json:"snippets"`
	Sessions []Session     `json:"sessions"`
	Stats    ActivityStats `json:"stats"`
}

// DefaultDocument returns an empty aggregate with every field present.
func DefaultDocument() ActivityDocument {
	return ActivityDocument{
		Snippets: []Snippet{},
		Sessions: []Session{},
		Stats: ActivityStats{
			Counters: map[string]int{},
		},
	}
}

// Normalize fills in any field a partially decoded document left nil, so
// callers never see nil slices or maps.
func (d *ActivityDocument) Normalize() {
	if d.Snippets == nil {
		d.Snippets = []Snippet{}
	}
	if d.Sessions == nil {
		d.Sessions = []Session{}
	}
	if d.Stats.Counters == nil {
		d.Stats.Counters = map[string]int{}
	}
}
