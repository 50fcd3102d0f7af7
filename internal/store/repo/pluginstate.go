package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"multibot/entity"
	"multibot/internal/config"
)

const collectionPluginStates = "plugin_states"

// PluginStateRepo persists plugin scratch space as schemaless documents.
// Following the teacher's internal/database.MongoDB idiom, it opens and
// closes a connection per call rather than holding one open for the life
// of the process — plugin state reads/writes are infrequent enough that
// the per-call cost does not matter, and it keeps this repo a drop-in
// match for the teacher's Mongo access pattern.
type PluginStateRepo struct {
	uri      string
	database string
}

func NewPluginStateRepo(conf *config.Config) *PluginStateRepo {
	return &PluginStateRepo{uri: conf.MongoURI, database: conf.MongoDatabase}
}

func (r *PluginStateRepo) connect(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(r.uri))
	if err != nil {
		return nil, fmt.Errorf("repo: mongo connect: %w", err)
	}
	return client, nil
}

func (r *PluginStateRepo) disconnect(ctx context.Context, client *mongo.Client) {
	_ = client.Disconnect(ctx)
}

// Get returns the stored value for (botID, pluginName, key), and false if
// no document exists.
func (r *PluginStateRepo) Get(ctx context.Context, botID, pluginName, key string) (any, bool, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return nil, false, err
	}
	defer r.disconnect(ctx, client)

	collection := client.Database(r.database).Collection(collectionPluginStates)
	filter := bson.D{{Key: "bot_id", Value: botID}, {Key: "plugin_name", Value: pluginName}, {Key: "state_key", Value: key}}
	var state entity.PluginState
	err = collection.FindOne(ctx, filter).Decode(&state)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("repo: plugin state get: %w", err)
	}
	return state.Value, true, nil
}

// Set upserts the value for (botID, pluginName, key).
func (r *PluginStateRepo) Set(ctx context.Context, state *entity.PluginState) error {
	client, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer r.disconnect(ctx, client)

	collection := client.Database(r.database).Collection(collectionPluginStates)
	filter := bson.D{{Key: "bot_id", Value: state.BotID}, {Key: "plugin_name", Value: state.PluginName}, {Key: "state_key", Value: state.StateKey}}
	update := bson.D{{Key: "$set", Value: state}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("repo: plugin state set: %w", err)
	}
	return nil
}

// DeleteScope removes every stored key for (botID, pluginName). Nothing in
// this module calls it: unloading a plugin or removing a bot leaves the
// stored keys in place.
func (r *PluginStateRepo) DeleteScope(ctx context.Context, botID, pluginName string) error {
	client, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer r.disconnect(ctx, client)

	collection := client.Database(r.database).Collection(collectionPluginStates)
	filter := bson.D{{Key: "bot_id", Value: botID}, {Key: "plugin_name", Value: pluginName}}
	_, err = collection.DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("repo: plugin state delete scope: %w", err)
	}
	return nil
}
