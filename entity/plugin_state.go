package entity

import "time"

// PluginState is a plugin's general-purpose key/value scratch space,
// persisted as a JSON document and keyed by (BotID, PluginName, StateKey).
type PluginState struct {
	BotID      string    `bson:"bot_id"`
	PluginName string    `bson:"plugin_name"`
	StateKey   string    `bson:"state_key"`
	Value      any       `bson:"value"`
	UpdatedAt  time.Time `bson:"updated_at"`
}
