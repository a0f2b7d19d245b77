package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

// Directory reads the user and group collections owned by the auth and group
// services. Read-only here.
type Directory struct {
	users  *mongo.Collection
	groups *mongo.Collection
}

func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{
		users:  db.Collection("users"),
		groups: db.Collection("groups"),
	}
}

func (d *Directory) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var u domain.User
	if err := d.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d *Directory) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var g domain.Group
	if err := d.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}
