package memory

import (
	"car-management/core"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// memStore implements CarStore and UserStore for in-memory storage.
type memStore struct {
	mu sync.RWMutex
	// cars is keyed by car ID; ownership is checked on every access.
	cars  map[string]*core.Car
	users map[string]*core.User
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		cars:  make(map[string]*core.Car),
		users: make(map[string]*core.User),
	}
}

func (s *memStore) Insert(ctx context.Context, car *core.Car) (*core.Car, error) {
	if car.OwnerID == "" {
		return nil, core.InvalidArgumentf("owner id cannot be empty")
	}

	stored := car.Clone()
	stored.ID = ulid.Make().String()

	s.mu.Lock()
	s.cars[stored.ID] = stored
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"user_id": stored.OwnerID, "car_id": stored.ID}).Info("Car created successfully")
	return stored.Clone(), nil
}

func (s *memStore) FindByOwner(ctx context.Context, ownerID string) ([]*core.Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cars := make([]*core.Car, 0)
	for _, car := range s.cars {
		if car.OwnerID == ownerID {
			cars = append(cars, car.Clone())
		}
	}
	sortNewestFirst(cars)

	logrus.WithField("user_id", ownerID).Debugf("Listed %d cars", len(cars))
	return cars, nil
}

func (s *memStore) FindAll(ctx context.Context) ([]*core.Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cars := make([]*core.Car, 0, len(s.cars))
	for _, car := range s.cars {
		cars = append(cars, car.Clone())
	}
	sortNewestFirst(cars)
	return cars, nil
}

func (s *memStore) SearchText(ctx context.Context, ownerID, keyword string) ([]*core.Car, error) {
	terms := core.SearchTerms(keyword)
	if len(terms) == 0 {
		return []*core.Car{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		car   *core.Car
		score int
	}
	hits := make([]hit, 0)
	for _, car := range s.cars {
		if car.OwnerID != ownerID {
			continue
		}
		if n := score(car, terms); n > 0 {
			hits = append(hits, hit{car: car.Clone(), score: n})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score == hits[j].score {
			return hits[i].car.CreatedAt.After(hits[j].car.CreatedAt)
		}
		return hits[i].score > hits[j].score
	})

	cars := make([]*core.Car, len(hits))
	for i, h := range hits {
		cars[i] = h.car
	}
	return cars, nil
}

func (s *memStore) FindOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	car, ok := s.cars[id]
	if !ok || car.OwnerID != ownerID {
		logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id}).Debug("Car not found for user")
		return nil, core.NotFoundf("car not found")
	}
	return car.Clone(), nil
}

func (s *memStore) UpdateOne(ctx context.Context, id, ownerID string, update core.CarUpdate) (*core.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	car, ok := s.cars[id]
	if !ok || car.OwnerID != ownerID {
		return nil, core.NotFoundf("car not found")
	}
	update.Apply(car)

	logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id}).Info("Car updated successfully")
	return car.Clone(), nil
}

func (s *memStore) DeleteOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	car, ok := s.cars[id]
	if !ok || car.OwnerID != ownerID {
		return nil, core.NotFoundf("car not found")
	}
	delete(s.cars, id)

	logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id}).Info("Car deleted successfully")
	return car, nil
}

func (s *memStore) CreateUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if email != "" && existing.Email == email {
			return core.AlreadyExistsf("email %s is already registered", email)
		}
	}

	user.ID = ulid.Make().String()
	user.Email = email
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *memStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, core.NotFoundf("user not found")
}

func (s *memStore) FindUserByID(ctx context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, core.NotFoundf("user not found")
	}
	u := *user
	return &u, nil
}

func (s *memStore) UpsertUserBySubject(ctx context.Context, user *core.User) (*core.User, error) {
	if user.Subject == "" {
		return nil, core.InvalidArgumentf("subject cannot be empty")
	}

	email := strings.ToLower(strings.TrimSpace(user.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	var match *core.User
	for _, existing := range s.users {
		if existing.Subject == user.Subject {
			match = existing
		}
	}
	for _, existing := range s.users {
		if email != "" && existing.Email == email && existing != match {
			return nil, core.AlreadyExistsf("email %s is already registered", email)
		}
	}
	if match != nil {
		match.Name = user.Name
		match.Email = email
		u := *match
		return &u, nil
	}

	stored := *user
	stored.ID = ulid.Make().String()
	stored.Email = email
	s.users[stored.ID] = &stored
	u := stored
	return &u, nil
}

func sortNewestFirst(cars []*core.Car) {
	sort.SliceStable(cars, func(i, j int) bool {
		if cars[i].CreatedAt.Equal(cars[j].CreatedAt) {
			return cars[i].ID > cars[j].ID
		}
		return cars[i].CreatedAt.After(cars[j].CreatedAt)
	})
}
