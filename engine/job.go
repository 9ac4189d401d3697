// Package engine orchestrates one job per configured page: query, entity
// resolution, rendering, diffing and (when needed) editing, with a global
// worker cap across all jobs.
package engine

import (
	"github.com/teranos/listsync/render"
)

// State is a job's position in the pipeline.
type State string

const (
	StatePending           State = "pending" // created, namespace not yet checked
	StateSkipped           State = "skipped" // excluded namespace, never queued
	StateQueued            State = "queued"
	StateQuerying          State = "querying"
	StateResolvingEntities State = "resolving_entities"
	StateRendering         State = "rendering"
	StateDiffing           State = "diffing"
	StateEditing           State = "editing"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Job carries one page through the pipeline. A job is owned by a single
// worker; only transitions are shared outward.
type Job struct {
	Page  string
	State State
	Spec  render.Spec

	Edited   bool // an edit was applied (false for no-op runs)
	Err      error
	Warnings int
}

// Transition is one observable state change, published to any registered
// broadcaster (the status server feeds these to websocket clients).
type Transition struct {
	Page  string `json:"page"`
	From  State  `json:"from"`
	To    State  `json:"to"`
	Error string `json:"error,omitempty"`
}

// Broadcaster receives job transitions as they happen. Implementations
// must not block; the engine calls them inline from worker goroutines.
type Broadcaster interface {
	BroadcastTransition(tr Transition)
}
