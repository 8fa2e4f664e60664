package model

import "encoding/json"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// TickRecord is the observable output of one generation: the emitted
// phenotype plus, per schedule of the active arrangement, whether the
// emission fell in its response class and whether it delivered a consequence.
type TickRecord struct {
	Rep         int    `json:"rep"`
	Arrangement int    `json:"arrangement"`
	Generation  int    `json:"generation"`
	Emitted     int    `json:"emitted"`
	InClass     []bool `json:"in_class"`
	Reinforced  []bool `json:"reinforced"`
	Punished    []bool `json:"punished"`
	Exhausted   bool   `json:"exhausted,omitempty"`
}

type RunRecord struct {
	VersionedRecord
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	CreatedAtUTC         string          `json:"created_at_utc"`
	Seed                 int64           `json:"seed"`
	Reps                 int             `json:"reps"`
	Arrangements         int             `json:"arrangements"`
	Schedules            int             `json:"schedules"`
	Generations          int             `json:"generations"`
	PopulationSize       int             `json:"population_size"`
	Ticks                int             `json:"ticks"`
	Reinforcements       []int           `json:"reinforcements"`
	SelectionExhaustions int             `json:"selection_exhaustions"`
	Config               json.RawMessage `json:"config,omitempty"`
}
