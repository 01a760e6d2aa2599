package model

import "time"

// ShardHeartbeat is the periodic liveness report from a monitoring worker.
// ProcessID changes whenever the worker restarts; the supervisor treats a
// changed ProcessID for a known shard id as an empty-state fresh process.
type ShardHeartbeat struct {
	ShardID        string    `json:"shard_id"`
	ProcessID      string    `json:"process_id"`
	StartedAt      time.Time `json:"started_at"`
	AssignedEvents []string  `json:"assigned_events"`
	Timestamp      time.Time `json:"timestamp"`
}

type CommandType string

const (
	CommandAssign CommandType = "assign"
	CommandRemove CommandType = "remove"
	CommandResync CommandType = "resync"
)

// ShardCommand flows supervisor -> shard: assign an event, remove one
// (reassignment or zombie cleanup), or replace the whole assignment list.
type ShardCommand struct {
	Type     CommandType `json:"type"`
	ShardID  string      `json:"shard_id"`
	EventIDs []string    `json:"event_ids"`
	IssuedAt time.Time   `json:"issued_at"`
}
