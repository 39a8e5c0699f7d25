package memory

import (
	"car-management/core"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func insert(t *testing.T, store *memStore, owner, title string, age time.Duration, tags ...string) *core.Car {
	t.Helper()
	car, err := store.Insert(context.Background(), &core.Car{
		OwnerID:     owner,
		Title:       title,
		Description: "description",
		Tags:        tags,
		Images:      []string{},
		CreatedAt:   base.Add(-age),
		UpdatedAt:   base.Add(-age),
	})
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	return car
}

func TestNewStore(t *testing.T) {
	store := NewStore()
	if store == nil {
		t.Fatal("NewStore() returned nil")
	}
}

func TestInsert_AssignsID(t *testing.T) {
	store := NewStore()
	car := insert(t, store, "alice", "Civic", 0)

	if len(car.ID) != 26 {
		t.Errorf("Insert() returned invalid ID length: got %d, want 26", len(car.ID))
	}
}

func TestInsert_RequiresOwner(t *testing.T) {
	store := NewStore()
	_, err := store.Insert(context.Background(), &core.Car{Title: "Civic"})
	if !errors.Is(err, core.InvalidArgument) {
		t.Errorf("Insert() error = %v, want InvalidArgument", err)
	}
}

func TestInsert_CopiesInput(t *testing.T) {
	store := NewStore()
	tags := []string{"a"}
	car, _ := store.Insert(context.Background(), &core.Car{OwnerID: "alice", Title: "Civic", Tags: tags})
	tags[0] = "changed"
	car.Tags[0] = "changed too"

	got, err := store.FindOne(context.Background(), car.ID, "alice")
	if err != nil {
		t.Fatalf("FindOne() failed: %v", err)
	}
	if got.Tags[0] != "a" {
		t.Errorf("Stored car shares memory with callers: tags = %v", got.Tags)
	}
}

func TestFindByOwner_NewestFirst(t *testing.T) {
	store := NewStore()
	oldest := insert(t, store, "alice", "oldest", 2*time.Hour)
	newest := insert(t, store, "alice", "newest", 0)
	middle := insert(t, store, "alice", "middle", time.Hour)
	insert(t, store, "bob", "other", 0)

	cars, err := store.FindByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByOwner() failed: %v", err)
	}
	if len(cars) != 3 {
		t.Fatalf("FindByOwner() returned %d cars, want 3", len(cars))
	}
	for i, want := range []*core.Car{newest, middle, oldest} {
		if cars[i].ID != want.ID {
			t.Errorf("cars[%d] = %s, want %s", i, cars[i].Title, want.Title)
		}
	}
}

func TestFindByOwner_Empty(t *testing.T) {
	store := NewStore()
	cars, err := store.FindByOwner(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("FindByOwner() failed: %v", err)
	}
	if cars == nil || len(cars) != 0 {
		t.Errorf("FindByOwner() = %#v, want empty list", cars)
	}
}

func TestFindAll(t *testing.T) {
	store := NewStore()
	insert(t, store, "alice", "a", time.Hour)
	insert(t, store, "bob", "b", 0)

	cars, err := store.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll() failed: %v", err)
	}
	if len(cars) != 2 || cars[0].OwnerID != "bob" {
		t.Errorf("FindAll() = %v, want bob's car first", cars)
	}
}

func TestSearchText_Relevance(t *testing.T) {
	store := NewStore()
	insert(t, store, "alice", "Red car", time.Hour)
	best := insert(t, store, "alice", "Red sports car", 2*time.Hour, "sports", "red")
	insert(t, store, "alice", "Blue sedan", 0)
	insert(t, store, "bob", "Red sports car", 0, "sports")

	cars, err := store.SearchText(context.Background(), "alice", "RED Sports")
	if err != nil {
		t.Fatalf("SearchText() failed: %v", err)
	}
	if len(cars) != 2 {
		t.Fatalf("SearchText() returned %d cars, want 2", len(cars))
	}
	if cars[0].ID != best.ID {
		t.Errorf("Most relevant car not first: got %q", cars[0].Title)
	}
}

func TestSearchText_NoTerms(t *testing.T) {
	store := NewStore()
	insert(t, store, "alice", "Civic", 0)

	cars, err := store.SearchText(context.Background(), "alice", "  ,; ")
	if err != nil {
		t.Fatalf("SearchText() failed: %v", err)
	}
	if len(cars) != 0 {
		t.Errorf("SearchText() without terms returned %d cars", len(cars))
	}
}

func TestFindOne_OwnerScoped(t *testing.T) {
	store := NewStore()
	car := insert(t, store, "alice", "Civic", 0)

	if _, err := store.FindOne(context.Background(), car.ID, "alice"); err != nil {
		t.Errorf("FindOne() by owner failed: %v", err)
	}
	if _, err := store.FindOne(context.Background(), car.ID, "bob"); !errors.Is(err, core.NotFound) {
		t.Errorf("FindOne() by other owner error = %v, want NotFound", err)
	}
}

func TestUpdateOne(t *testing.T) {
	store := NewStore()
	car := insert(t, store, "alice", "Civic", time.Hour)

	title := "Accord"
	updated, err := store.UpdateOne(context.Background(), car.ID, "alice", core.CarUpdate{
		Title:     &title,
		Images:    []string{"https://img/1.jpg"},
		UpdatedAt: base,
	})
	if err != nil {
		t.Fatalf("UpdateOne() failed: %v", err)
	}
	if updated.Title != "Accord" || updated.Description != "description" {
		t.Errorf("UpdateOne() = %+v", updated)
	}
	if len(updated.Images) != 1 || !updated.UpdatedAt.Equal(base) {
		t.Errorf("UpdateOne() images %v, updatedAt %v", updated.Images, updated.UpdatedAt)
	}

	if _, err := store.UpdateOne(context.Background(), car.ID, "bob", core.CarUpdate{Title: &title}); !errors.Is(err, core.NotFound) {
		t.Errorf("UpdateOne() by other owner error = %v, want NotFound", err)
	}
}

func TestDeleteOne(t *testing.T) {
	store := NewStore()
	car := insert(t, store, "alice", "Civic", 0)

	if _, err := store.DeleteOne(context.Background(), car.ID, "bob"); !errors.Is(err, core.NotFound) {
		t.Errorf("DeleteOne() by other owner error = %v, want NotFound", err)
	}
	deleted, err := store.DeleteOne(context.Background(), car.ID, "alice")
	if err != nil {
		t.Fatalf("DeleteOne() failed: %v", err)
	}
	if deleted.ID != car.ID {
		t.Errorf("DeleteOne() returned %s, want %s", deleted.ID, car.ID)
	}
	if _, err := store.FindOne(context.Background(), car.ID, "alice"); !errors.Is(err, core.NotFound) {
		t.Errorf("FindOne() after delete error = %v, want NotFound", err)
	}
}

func TestUsers(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	user := &core.User{Email: " Alice@Example.com ", Name: "Alice", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if user.ID == "" || user.Email != "alice@example.com" {
		t.Errorf("CreateUser() left user as %+v", user)
	}
	if err := store.CreateUser(ctx, &core.User{Email: "alice@example.com"}); !errors.Is(err, core.AlreadyExists) {
		t.Errorf("CreateUser() duplicate error = %v, want AlreadyExists", err)
	}

	byEmail, err := store.FindUserByEmail(ctx, "ALICE@example.com")
	if err != nil || byEmail.ID != user.ID {
		t.Errorf("FindUserByEmail() = %v, %v", byEmail, err)
	}
	if _, err := store.FindUserByID(ctx, "missing"); !errors.Is(err, core.NotFound) {
		t.Errorf("FindUserByID() error = %v, want NotFound", err)
	}
}

func TestUpsertUserBySubject(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.UpsertUserBySubject(ctx, &core.User{Subject: "github:1", Email: "a@example.com", Name: "A"})
	if err != nil {
		t.Fatalf("UpsertUserBySubject() failed: %v", err)
	}
	second, err := store.UpsertUserBySubject(ctx, &core.User{Subject: "github:1", Email: "a@example.com", Name: "Renamed"})
	if err != nil {
		t.Fatalf("UpsertUserBySubject() failed: %v", err)
	}
	if first.ID != second.ID || second.Name != "Renamed" {
		t.Errorf("Upsert created a second user or kept the old name: %+v / %+v", first, second)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			car, err := store.Insert(ctx, &core.Car{OwnerID: "alice", Title: "Civic", CreatedAt: base})
			if err != nil {
				t.Errorf("Insert() failed: %v", err)
				return
			}
			store.FindByOwner(ctx, "alice")
			store.FindOne(ctx, car.ID, "alice")
		}()
	}
	wg.Wait()

	cars, _ := store.FindByOwner(ctx, "alice")
	if len(cars) != 50 {
		t.Errorf("Expected 50 cars, got %d", len(cars))
	}
}

func TestUpsertUserBySubject_DuplicateEmail(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.CreateUser(ctx, &core.User{Email: "bob@example.com", PasswordHash: "hash"}); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if _, err := store.UpsertUserBySubject(ctx, &core.User{Subject: "github:2", Email: "Bob@example.com"}); !errors.Is(err, core.AlreadyExists) {
		t.Errorf("Upsert of a new subject with a taken email error = %v, want AlreadyExists", err)
	}

	if _, err := store.UpsertUserBySubject(ctx, &core.User{Subject: "github:3", Email: "carol@example.com"}); err != nil {
		t.Fatalf("UpsertUserBySubject() failed: %v", err)
	}
	if _, err := store.UpsertUserBySubject(ctx, &core.User{Subject: "github:3", Email: "bob@example.com"}); !errors.Is(err, core.AlreadyExists) {
		t.Errorf("Upsert moving to a taken email error = %v, want AlreadyExists", err)
	}

	if _, err := store.UpsertUserBySubject(ctx, &core.User{Subject: "github:4"}); err != nil {
		t.Errorf("Upsert without email failed: %v", err)
	}
	if _, err := store.UpsertUserBySubject(ctx, &core.User{Subject: "github:5"}); err != nil {
		t.Errorf("Second upsert without email failed: %v", err)
	}
}
