package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/live-leaderboard/internal/leaderboard"
	"github.com/DoyleJ11/live-leaderboard/pkg/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// mongoTeam matches the documents already in a "teams" collection
// (timestamps in createdAt/updatedAt), so one can be reused as is.
type mongoTeam struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	CompanyName string             `bson:"companyName"`
	Score       int64              `bson:"score"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d mongoTeam) team() types.Team {
	return types.Team{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		CompanyName: d.CompanyName,
		Score:       int(d.Score),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// Mongo is the MongoDB data store for team records.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongo connects to MongoDB, pings the primary and makes sure the unique
// name index exists.
func NewMongo(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		if disconnectErr := client.Disconnect(context.Background()); disconnectErr != nil {
			logger.Warn("failed to disconnect MongoDB client after ping failure", zap.Error(disconnectErr))
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m := &Mongo{
		client:     client,
		collection: client.Database(database).Collection(collection),
		logger:     logger,
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("connected to MongoDB", zap.String("database", database), zap.String("collection", collection))
	return m, nil
}

// NewMongoFromCollection wraps an already connected collection.
func NewMongoFromCollection(collection *mongo.Collection, logger *zap.Logger) *Mongo {
	return &Mongo{collection: collection, logger: logger}
}

// EnsureIndexes creates the unique index on name. It is a no-op when the
// index already exists.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create name index: %w", err)
	}
	return nil
}

// Find retrieves all teams ranked by score, ties by creation.
func (m *Mongo) Find(ctx context.Context) ([]types.Team, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "score", Value: -1},
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := m.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find teams: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoTeam
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode teams: %w", err)
	}
	teams := make([]types.Team, 0, len(docs))
	for _, d := range docs {
		teams = append(teams, d.team())
	}
	return teams, nil
}

func (m *Mongo) FindByName(ctx context.Context, name string) (types.Team, error) {
	return m.findOne(ctx, bson.M{"name": name})
}

func (m *Mongo) FindByID(ctx context.Context, id string) (types.Team, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Team{}, leaderboard.ErrNotFound
	}
	return m.findOne(ctx, bson.M{"_id": oid})
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (types.Team, error) {
	var doc mongoTeam
	if err := m.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Team{}, leaderboard.ErrNotFound
		}
		return types.Team{}, fmt.Errorf("failed to find team: %w", err)
	}
	return doc.team(), nil
}

func (m *Mongo) Count(ctx context.Context) (int64, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}
	return n, nil
}

// InsertMany creates the given teams in one round trip. IDs and timestamps
// are assigned here.
func (m *Mongo) InsertMany(ctx context.Context, teams []types.Team) ([]types.Team, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]interface{}, 0, len(teams))
	created := make([]types.Team, 0, len(teams))
	for _, t := range teams {
		d := mongoTeam{
			ID:          primitive.NewObjectID(),
			Name:        t.Name,
			CompanyName: t.CompanyName,
			Score:       int64(t.Score),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		docs = append(docs, d)
		created = append(created, d.team())
	}

	if _, err := m.collection.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("failed to insert teams: %w", leaderboard.ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to insert teams: %w", err)
	}
	return created, nil
}

// IncrementScore atomically adds delta to the team's score.
func (m *Mongo) IncrementScore(ctx context.Context, name string, delta int) (types.Team, error) {
	update := bson.M{
		"$inc": bson.M{"score": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	return m.findOneAndUpdate(ctx, bson.M{"name": name}, update)
}

func (m *Mongo) Save(ctx context.Context, t types.Team) (types.Team, error) {
	oid, err := primitive.ObjectIDFromHex(t.ID)
	if err != nil {
		return types.Team{}, leaderboard.ErrNotFound
	}
	update := bson.M{
		"$set": bson.M{
			"name":        t.Name,
			"companyName": t.CompanyName,
			"score":       t.Score,
			"updatedAt":   time.Now().UTC(),
		},
	}
	return m.findOneAndUpdate(ctx, bson.M{"_id": oid}, update)
}

func (m *Mongo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (types.Team, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoTeam
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return types.Team{}, leaderboard.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return types.Team{}, fmt.Errorf("failed to update team: %w", leaderboard.ErrDuplicateName)
	case err != nil:
		return types.Team{}, fmt.Errorf("failed to update team: %w", err)
	}
	return doc.team(), nil
}

func (m *Mongo) ResetScores(ctx context.Context) error {
	update := bson.M{"$set": bson.M{"score": 0, "updatedAt": time.Now().UTC()}}
	res, err := m.collection.UpdateMany(ctx, bson.M{}, update)
	if err != nil {
		return fmt.Errorf("failed to reset scores: %w", err)
	}
	m.logger.Debug("scores reset", zap.Int64("matched", res.MatchedCount))
	return nil
}

func (m *Mongo) DeleteByID(ctx context.Context, id string) (types.Team, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Team{}, leaderboard.ErrNotFound
	}
	var doc mongoTeam
	if err := m.collection.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Team{}, leaderboard.ErrNotFound
		}
		return types.Team{}, fmt.Errorf("failed to delete team %s: %w", id, err)
	}
	return doc.team(), nil
}

// Close disconnects the MongoDB client if this store owns it.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	m.logger.Info("disconnecting from MongoDB")
	return m.client.Disconnect(ctx)
}
