package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

type DirectRepository struct {
	coll *mongo.Collection
}

func NewDirectRepository(db *mongo.Database) *DirectRepository {
	coll := db.Collection("messages")
	_, _ = coll.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("pair_created_idx"),
	})
	return &DirectRepository{coll: coll}
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": []bson.M{
		{"sender": a, "receiver": b},
		{"sender": b, "receiver": a},
	}}
}

func (r *DirectRepository) SaveDirect(ctx context.Context, m *domain.DirectMessage) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *DirectRepository) GetDirectByID(ctx context.Context, id string) (*domain.DirectMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.DirectMessage
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *DirectRepository) DirectBetween(ctx context.Context, userA, userB string, skip, limit int64) ([]*domain.DirectMessage, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := pairFilter(userA, userB)
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

	out := []*domain.DirectMessage{}
	for cur.Next(ctx) {
		var m domain.DirectMessage
		if err := cur.Decode(&m); err != nil {
			return nil, 0, err
		}
		out = append(out, &m)
	}
	return out, total, cur.Err()
}

func (r *DirectRepository) RecallDirect(ctx context.Context, id string) error {
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

func (r *DirectRepository) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"sender": senderID, "receiver": receiverID, "read_status": domain.ReadStatusUnread},
		bson.M{"$set": bson.M{"read_status": domain.ReadStatusRead, "status": domain.StatusRead}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *DirectRepository) LatestPerConversation(ctx context.Context, userID string) ([]*store.ConversationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": []bson.M{{"sender": userID}, {"receiver": userID}}}}},
		{{Key: "$addFields", Value: bson.M{
			"friend_id": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender", userID}}, "$receiver", "$sender",
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$friend_id",
			"body":        bson.M{"$first": "$body"},
			"kind":        bson.M{"$first": "$kind"},
			"is_recalled": bson.M{"$first": "$is_recalled"},
			"created_at":  bson.M{"$first": "$created_at"},
			"unread": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$read_status", string(domain.ReadStatusUnread)}},
					bson.M{"$eq": bson.A{"$receiver", userID}},
				}}, 1, 0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*store.ConversationSummary{}
	for cur.Next(ctx) {
		var row struct {
			FriendID  string             `bson:"_id"`
			Body      string             `bson:"body"`
			Kind      domain.MessageKind `bson:"kind"`
			Recalled  bool               `bson:"is_recalled"`
			CreatedAt time.Time          `bson:"created_at"`
			Unread    int64              `bson:"unread"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, &store.ConversationSummary{
			FriendID:  row.FriendID,
			Body:      row.Body,
			Kind:      row.Kind,
			Recalled:  row.Recalled,
			Timestamp: row.CreatedAt,
			Unread:    row.Unread,
		})
	}
	return out, cur.Err()
}
