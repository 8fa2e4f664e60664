package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"etbd/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// StampVersion fills in the current schema and codec versions.
func StampVersion(run *model.RunRecord) {
	run.SchemaVersion = CurrentSchemaVersion
	run.CodecVersion = CurrentCodecVersion
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeTick(tick model.TickRecord) ([]byte, error) {
	return json.Marshal(tick)
}

func DecodeTick(data []byte) (model.TickRecord, error) {
	var tick model.TickRecord
	if err := json.Unmarshal(data, &tick); err != nil {
		return model.TickRecord{}, err
	}
	return tick, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

// sortRunsNewestFirst orders by creation time, breaking ties by id.
func sortRunsNewestFirst(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
		}
		return runs[i].ID > runs[j].ID
	})
}

func cloneTick(tick model.TickRecord) model.TickRecord {
	tick.InClass = append([]bool(nil), tick.InClass...)
	tick.Reinforced = append([]bool(nil), tick.Reinforced...)
	tick.Punished = append([]bool(nil), tick.Punished...)
	return tick
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Reinforcements = append([]int(nil), run.Reinforcements...)
	run.Config = append([]byte(nil), run.Config...)
	return run
}
