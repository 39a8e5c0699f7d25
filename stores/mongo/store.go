package mongo

import (
	"car-management/core"
	"context"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoStore implements CarStore and UserStore on MongoDB (or DocumentDB).
type mongoStore struct {
	client *mongo.Client
	cars   *mongo.Collection
	users  *mongo.Collection
}

// carItem is the stored shape of a car.
type carItem struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID     string             `bson:"owner_id"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Tags        []string           `bson:"tags"`
	Images      []string           `bson:"images"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

type userItem struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	Name         string             `bson:"name"`
	Subject      string             `bson:"subject,omitempty"`
	PasswordHash string             `bson:"password_hash,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
}

// NewStore connects to uri and prepares the cars and users collections,
// including the text index used by SearchText.
func NewStore(ctx context.Context, uri, database string) (*mongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Annotate(err, "failed to connect to mongo")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Annotate(err, "failed to ping mongo")
	}

	db := client.Database(database)
	s := &mongoStore{
		client: client,
		cars:   db.Collection("cars"),
		users:  db.Collection("users"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	logrus.WithField("database", database).Info("Connected to mongo")
	return s, nil
}

func (s *mongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.cars.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{
			{Key: "title", Value: "text"},
			{Key: "description", Value: "text"},
			{Key: "tags", Value: "text"},
		}},
	})
	if err != nil {
		return errors.Annotate(err, "failed to create car indexes")
	}

	_, err = s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
		},
		{
			Keys: bson.D{{Key: "subject", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"subject": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return errors.Annotate(err, "failed to create user indexes")
	}
	return nil
}

// Close disconnects the client.
func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toCar(item *carItem) *core.Car {
	return &core.Car{
		ID:          item.ID.Hex(),
		OwnerID:     item.OwnerID,
		Title:       item.Title,
		Description: item.Description,
		Tags:        nonNil(item.Tags),
		Images:      nonNil(item.Images),
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// ownedFilter scopes a lookup to id and owner. An id that is not a valid
// ObjectID cannot exist, so it reports NotFound like any other miss.
func ownedFilter(id, ownerID string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, core.NotFoundf("car not found")
	}
	return bson.M{"_id": oid, "owner_id": ownerID}, nil
}

func (s *mongoStore) findCars(ctx context.Context, filter any, opts *options.FindOptions) ([]*core.Car, error) {
	cursor, err := s.cars.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	cars := make([]*core.Car, 0)
	for cursor.Next(ctx) {
		var item carItem
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		cars = append(cars, toCar(&item))
	}
	return cars, cursor.Err()
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
}

func (s *mongoStore) Insert(ctx context.Context, car *core.Car) (*core.Car, error) {
	item := carItem{
		OwnerID:     car.OwnerID,
		Title:       car.Title,
		Description: car.Description,
		Tags:        nonNil(car.Tags),
		Images:      nonNil(car.Images),
		CreatedAt:   car.CreatedAt,
		UpdatedAt:   car.UpdatedAt,
	}
	res, err := s.cars.InsertOne(ctx, item)
	if err != nil {
		logrus.WithField("user_id", car.OwnerID).WithError(err).Error("Failed to create car")
		return nil, core.AsStoreError(err, "failed to insert car")
	}
	item.ID = res.InsertedID.(primitive.ObjectID)

	logrus.WithFields(logrus.Fields{"user_id": car.OwnerID, "car_id": item.ID.Hex()}).Info("Car created successfully")
	return toCar(&item), nil
}

func (s *mongoStore) FindByOwner(ctx context.Context, ownerID string) ([]*core.Car, error) {
	cars, err := s.findCars(ctx, bson.M{"owner_id": ownerID}, newestFirst())
	if err != nil {
		return nil, core.AsQueryError(err, "failed to list cars")
	}
	return cars, nil
}

func (s *mongoStore) FindAll(ctx context.Context) ([]*core.Car, error) {
	cars, err := s.findCars(ctx, bson.M{}, newestFirst())
	if err != nil {
		return nil, core.AsQueryError(err, "failed to list cars")
	}
	return cars, nil
}

func (s *mongoStore) SearchText(ctx context.Context, ownerID, keyword string) ([]*core.Car, error) {
	if strings.TrimSpace(keyword) == "" {
		return []*core.Car{}, nil
	}
	score := bson.M{"score": bson.M{"$meta": "textScore"}}
	opts := options.Find().SetProjection(score).SetSort(score)

	cars, err := s.findCars(ctx, bson.M{
		"owner_id": ownerID,
		"$text":    bson.M{"$search": keyword},
	}, opts)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": ownerID, "keyword": keyword}).WithError(err).Error("Failed to search cars")
		return nil, core.AsQueryError(err, "failed to search cars")
	}
	return cars, nil
}

func (s *mongoStore) FindOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	filter, err := ownedFilter(id, ownerID)
	if err != nil {
		return nil, err
	}
	var item carItem
	if err := s.cars.FindOne(ctx, filter).Decode(&item); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, core.NotFoundf("car not found")
		}
		return nil, core.AsQueryError(err, "failed to get car")
	}
	return toCar(&item), nil
}

func (s *mongoStore) UpdateOne(ctx context.Context, id, ownerID string, update core.CarUpdate) (*core.Car, error) {
	filter, err := ownedFilter(id, ownerID)
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Tags != nil {
		set["tags"] = update.Tags
	}
	if update.Images != nil {
		set["images"] = update.Images
	}
	if !update.UpdatedAt.IsZero() {
		set["updated_at"] = update.UpdatedAt
	}
	if len(set) == 0 {
		return s.FindOne(ctx, id, ownerID)
	}

	var item carItem
	err = s.cars.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, core.NotFoundf("car not found")
		}
		logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id}).WithError(err).Error("Failed to update car")
		return nil, core.AsStoreError(err, "failed to update car")
	}
	return toCar(&item), nil
}

func (s *mongoStore) DeleteOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	filter, err := ownedFilter(id, ownerID)
	if err != nil {
		return nil, err
	}
	var item carItem
	if err := s.cars.FindOneAndDelete(ctx, filter).Decode(&item); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, core.NotFoundf("car not found")
		}
		return nil, core.AsStoreError(err, "failed to delete car")
	}

	logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id}).Info("Car deleted successfully")
	return toCar(&item), nil
}
