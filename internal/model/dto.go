package model

import "time"

// Admin API views.

type StatusResponse struct {
	Mode          string    `json:"mode"`
	KillSwitch    bool      `json:"kill_switch"`
	TrackedEvents int       `json:"tracked_events"`
	AliveShards   int       `json:"alive_shards"`
	StartedAt     time.Time `json:"started_at"`
}

type ShardView struct {
	ShardID       string    `json:"shard_id"`
	Alive         bool      `json:"alive"`
	MissedBeats   int       `json:"missed_beats"`
	EventCount    int       `json:"event_count"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

type ExposureView struct {
	EventID  string `json:"event_id"`
	Category string `json:"category"`
	Exposure string `json:"exposure"`
}

type KillSwitchRequest struct {
	Engaged bool   `json:"engaged"`
	Reason  string `json:"reason"`
}
