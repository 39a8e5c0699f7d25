package core

import (
	"context"
	"time"
)

type (
	// Car is a user-owned record with its image URLs.
	Car struct {
		ID          string    `json:"_id"`
		OwnerID     string    `json:"userId"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Tags        []string  `json:"tags"`
		Images      []string  `json:"images"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	// CarUpdate carries the fields to overwrite. Nil fields are left alone;
	// a non-nil Images replaces the whole list.
	CarUpdate struct {
		Title       *string
		Description *string
		Tags        []string
		Images      []string
		UpdatedAt   time.Time
	}

	// CarStore defines the persistence layer for cars.
	// Every lookup that takes an ownerID must filter on it.
	CarStore interface {
		// Insert stores a new car and assigns its ID.
		Insert(ctx context.Context, car *Car) (*Car, error)

		// FindByOwner returns the owner's cars, newest first.
		FindByOwner(ctx context.Context, ownerID string) ([]*Car, error)

		// FindAll returns every car of every owner, newest first.
		FindAll(ctx context.Context) ([]*Car, error)

		// SearchText returns the owner's cars whose title, description or
		// tags match keyword, most relevant first.
		SearchText(ctx context.Context, ownerID, keyword string) ([]*Car, error)

		// FindOne returns the car only if it belongs to ownerID, NotFound otherwise.
		FindOne(ctx context.Context, id, ownerID string) (*Car, error)

		// UpdateOne applies update and returns the updated car, NotFound if
		// no car matches.
		UpdateOne(ctx context.Context, id, ownerID string, update CarUpdate) (*Car, error)

		// DeleteOne removes the car and returns it as it was, NotFound if
		// no car matches.
		DeleteOne(ctx context.Context, id, ownerID string) (*Car, error)
	}
)

// Empty reports whether the update changes nothing but the timestamp.
func (u CarUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Tags == nil && u.Images == nil
}

// Apply writes the update onto car in place.
func (u CarUpdate) Apply(car *Car) {
	if u.Title != nil {
		car.Title = *u.Title
	}
	if u.Description != nil {
		car.Description = *u.Description
	}
	if u.Tags != nil {
		car.Tags = append([]string(nil), u.Tags...)
	}
	if u.Images != nil {
		car.Images = append([]string(nil), u.Images...)
	}
	if !u.UpdatedAt.IsZero() {
		car.UpdatedAt = u.UpdatedAt
	}
}

// Clone returns a deep copy so stores never hand out their own slices.
func (c *Car) Clone() *Car {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Tags = append(make([]string, 0, len(c.Tags)), c.Tags...)
	cp.Images = append(make([]string, 0, len(c.Images)), c.Images...)
	return &cp
}
