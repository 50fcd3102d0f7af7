package entity

import "time"

// StatsBucket is one hourly aggregate row, keyed by (BotID, HourBucket).
// Counters are monotonically non-decreasing within a bucket — flushes
// increment them, never overwrite, except UniqueUsers which takes the max.
type StatsBucket struct {
	BotID         string         `json:"bot_id"`
	HourBucket    time.Time      `json:"hour_bucket"`
	MessageCount  int64          `json:"message_count"`
	CommandCount  int64          `json:"command_count"`
	CallbackCount int64          `json:"callback_count"`
	ErrorCount    int64          `json:"error_count"`
	UniqueUsers   int64          `json:"unique_users"`
	NewUsers      int64          `json:"new_users"`
	CommandUsage  map[string]int64 `json:"command_usage"`
}

// Delta is the set of mutations a single flush applies to one bucket.
// CommandUsage is merged key-wise (summed); UniqueUsers is the observed
// distinct-user count for the flush interval, combined with max().
type Delta struct {
	Messages     int64
	Commands     int64
	Callbacks    int64
	Errors       int64
	NewUsers     int64
	UniqueUsers  int64
	CommandUsage map[string]int64
}
