package mongo

import (
	"car-management/core"
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func toUser(item *userItem) *core.User {
	return &core.User{
		ID:           item.ID.Hex(),
		Email:        item.Email,
		Name:         item.Name,
		Subject:      item.Subject,
		PasswordHash: item.PasswordHash,
		CreatedAt:    item.CreatedAt.UTC(),
	}
}

func (s *mongoStore) CreateUser(ctx context.Context, user *core.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	item := userItem{
		Email:        user.Email,
		Name:         user.Name,
		Subject:      user.Subject,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	res, err := s.users.InsertOne(ctx, item)
	if mongo.IsDuplicateKeyError(err) {
		return core.AlreadyExistsf("email %s is already registered", user.Email)
	}
	if err != nil {
		return core.AsStoreError(err, "failed to create user")
	}
	user.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (s *mongoStore) findUser(ctx context.Context, filter bson.M) (*core.User, error) {
	var item userItem
	if err := s.users.FindOne(ctx, filter).Decode(&item); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, core.NotFoundf("user not found")
		}
		return nil, core.AsQueryError(err, "failed to get user")
	}
	return toUser(&item), nil
}

func (s *mongoStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *mongoStore) FindUserByID(ctx context.Context, id string) (*core.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, core.NotFoundf("user not found")
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *mongoStore) UpsertUserBySubject(ctx context.Context, user *core.User) (*core.User, error) {
	if user.Subject == "" {
		return nil, core.InvalidArgumentf("subject cannot be empty")
	}
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var item userItem
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"subject": user.Subject},
		bson.M{
			"$set": bson.M{
				"email": strings.ToLower(strings.TrimSpace(user.Email)),
				"name":  user.Name,
			},
			"$setOnInsert": bson.M{"created_at": createdAt},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&item)
	if mongo.IsDuplicateKeyError(err) {
		return nil, core.AlreadyExistsf("email %s is already registered", user.Email)
	}
	if err != nil {
		return nil, core.AsStoreError(err, "failed to upsert user")
	}
	return toUser(&item), nil
}
