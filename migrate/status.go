package migrate

import (
	"fmt"
	"strings"
	"time"
)

// State classifies one migration relative to the bookkeeping table.
type State string

const (
	// StateDone: recorded, and the on-disk routine's hash matches (or no
	// hash was recorded).
	StateDone State = "done"
	// StatePending: on disk but never recorded.
	StatePending State = "pending"
	// StateModified: recorded, but the on-disk hash drifted.
	StateModified State = "modified"
	// StateLost: recorded, with no on-disk routine left.
	StateLost State = "lost"
)

// Record is one row of the bookkeeping table: the durable source of truth
// for what has been applied. Rows are append-only; a row is deleted only
// when the exact migration it records is rolled back.
type Record struct {
	ID          int
	Service     string
	Module      string
	Name        string
	Description string
	Batch       int
	Timestamp   time.Time
	Hash        string
}

// Item joins one on-disk routine with its record, if any.
type Item struct {
	State       State
	Record      *Record
	Module      string
	Name        string
	Description string
	Batch       int
	Hash        string
	Routine     *Routine
}

// Status is the derived view of all migrations. Items keep record order
// first (application order), pending files after.
type Status struct {
	Items []*Item
	// Batch is the maximum recorded batch number, 0 when none.
	Batch int
}

// ComputeStatus classifies every record and file: recorded items start as
// lost, are upgraded to done or modified when their file is found, and
// files with no record are pending.
func ComputeStatus(files []*File, records []*Record) *Status {
	s := &Status{}
	byName := map[string]*Item{}
	for _, rec := range records {
		item := &Item{
			State:       StateLost,
			Record:      rec,
			Module:      rec.Module,
			Name:        rec.Name,
			Description: rec.Description,
			Batch:       rec.Batch,
			Hash:        rec.Hash,
		}
		s.Items = append(s.Items, item)
		byName[rec.Name] = item
		if rec.Batch > s.Batch {
			s.Batch = rec.Batch
		}
	}
	for _, file := range files {
		if item, ok := byName[file.Name]; ok {
			if item.Hash == "" || item.Hash == file.Routine.Hash {
				item.State = StateDone
			} else {
				item.State = StateModified
			}
			item.Routine = file.Routine
			continue
		}
		s.Items = append(s.Items, &Item{
			State:       StatePending,
			Module:      file.Module,
			Name:        file.Name,
			Description: file.Routine.Description,
			Hash:        file.Routine.Hash,
			Routine:     file.Routine,
		})
	}
	return s
}

// Pending returns the items awaiting application, in name order.
func (s *Status) Pending() []*Item {
	var items []*Item
	for _, item := range s.Items {
		if item.State == StatePending {
			items = append(items, item)
		}
	}
	return items
}

// LastBatch returns the recorded items of the current (maximum) batch, in
// application order.
func (s *Status) LastBatch() []*Item {
	var items []*Item
	for _, item := range s.Items {
		if item.Record != nil && item.Batch == s.Batch {
			items = append(items, item)
		}
	}
	return items
}

// Describe renders the status table for human display.
func (s *Status) Describe() string {
	var b strings.Builder
	b.WriteString("Migration Status\n")
	for _, item := range s.Items {
		id := "*"
		if item.Record != nil {
			id = fmt.Sprint(item.Record.ID)
		}
		batch := "..."
		if item.Record != nil {
			batch = fmt.Sprint(item.Batch)
		}
		fmt.Fprintf(&b, "- %s\t%s\t%s %s @ %s\n", id, item.State, item.Module, item.Name, batch)
	}
	return b.String()
}
