package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

type GroupRepository struct {
	coll *mongo.Collection
}

func NewGroupRepository(db *mongo.Database) *GroupRepository {
	coll := db.Collection("group_messages")
	_, _ = coll.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("group_created_idx"),
	})
	return &GroupRepository{coll: coll}
}

func (r *GroupRepository) SaveGroup(ctx context.Context, m *domain.GroupMessage) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *GroupRepository) GetGroupByID(ctx context.Context, id string) (*domain.GroupMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.GroupMessage
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *GroupRepository) GroupHistory(ctx context.Context, groupID string, skip, limit int64) ([]*domain.GroupMessage, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"group_id": groupID}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	out := []*domain.GroupMessage{}
	for cur.Next(ctx) {
		var m domain.GroupMessage
		if err := cur.Decode(&m); err != nil {
			return nil, 0, err
		}
		out = append(out, &m)
	}
	return out, total, cur.Err()
}

func (r *GroupRepository) RecallGroup(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"is_recalled": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
