package sqlite

import (
	"car-management/core"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cars (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		images TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS cars_owner_created ON cars (owner_id, created_at DESC);`,
	// Text index over title, description and tags.
	`CREATE VIRTUAL TABLE IF NOT EXISTS cars_fts USING fts5(
		car_id UNINDEXED,
		title,
		description,
		tags
	);`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT,
		subject TEXT,
		password_hash TEXT,
		created_at INTEGER NOT NULL
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email ON users (email) WHERE email <> '';`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_subject ON users (subject) WHERE subject IS NOT NULL AND subject <> '';`,
}

// NewStore opens (or creates) the SQLite database and its tables.
func NewStore(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open sqlite database")
	}
	// A single connection keeps ":memory:" databases shared and
	// serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Annotate(err, "failed to create schema")
		}
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

const carColumns = "id, owner_id, title, description, tags, images, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCar(row rowScanner) (*core.Car, error) {
	var (
		car                  core.Car
		tags, images         string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&car.ID, &car.OwnerID, &car.Title, &car.Description, &tags, &images, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &car.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of car %s: %w", car.ID, err)
	}
	if err := json.Unmarshal([]byte(images), &car.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images of car %s: %w", car.ID, err)
	}
	car.CreatedAt = time.Unix(0, createdAt).UTC()
	car.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &car, nil
}

func queryCars(ctx context.Context, db *sql.DB, query string, args ...any) ([]*core.Car, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cars := make([]*core.Car, 0)
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		cars = append(cars, car)
	}
	return cars, rows.Err()
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func (s *sqliteStore) Insert(ctx context.Context, car *core.Car) (*core.Car, error) {
	stored := car.Clone()
	stored.ID = ulid.Make().String()
	log := logrus.WithFields(logrus.Fields{"user_id": stored.OwnerID, "car_id": stored.ID})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.AsStoreError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO cars ("+carColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		stored.ID, stored.OwnerID, stored.Title, stored.Description,
		encodeList(stored.Tags), encodeList(stored.Images),
		stored.CreatedAt.UnixNano(), stored.UpdatedAt.UnixNano())
	if err != nil {
		log.WithError(err).Error("Failed to create car")
		return nil, core.AsStoreError(err, "failed to insert car")
	}
	if err := indexCar(ctx, tx, stored); err != nil {
		return nil, core.AsStoreError(err, "failed to index car")
	}
	if err := tx.Commit(); err != nil {
		return nil, core.AsStoreError(err, "failed to commit car")
	}

	log.Info("Car created successfully")
	return stored, nil
}

func indexCar(ctx context.Context, tx *sql.Tx, car *core.Car) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM cars_fts WHERE car_id = ?", car.ID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO cars_fts (car_id, title, description, tags) VALUES (?, ?, ?, ?)",
		car.ID, car.Title, car.Description, strings.Join(car.Tags, " "))
	return err
}

func (s *sqliteStore) FindByOwner(ctx context.Context, ownerID string) ([]*core.Car, error) {
	cars, err := queryCars(ctx, s.db,
		"SELECT "+carColumns+" FROM cars WHERE owner_id = ? ORDER BY created_at DESC, id DESC", ownerID)
	if err != nil {
		logrus.WithField("user_id", ownerID).WithError(err).Error("Failed to list cars")
		return nil, core.AsQueryError(err, "failed to list cars")
	}
	return cars, nil
}

func (s *sqliteStore) FindAll(ctx context.Context) ([]*core.Car, error) {
	cars, err := queryCars(ctx, s.db,
		"SELECT "+carColumns+" FROM cars ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, core.AsQueryError(err, "failed to list cars")
	}
	return cars, nil
}

// matchExpression turns a keyword into an FTS5 query matching any term.
// Terms only contain letters and digits, so quoting them is enough.
func matchExpression(keyword string) string {
	terms := core.SearchTerms(keyword)
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

func (s *sqliteStore) SearchText(ctx context.Context, ownerID, keyword string) ([]*core.Car, error) {
	match := matchExpression(keyword)
	if match == "" {
		return []*core.Car{}, nil
	}

	cars, err := queryCars(ctx, s.db, `
		SELECT c.id, c.owner_id, c.title, c.description, c.tags, c.images, c.created_at, c.updated_at
		FROM cars_fts
		JOIN cars c ON c.id = cars_fts.car_id
		WHERE cars_fts MATCH ? AND c.owner_id = ?
		ORDER BY cars_fts.rank, c.created_at DESC`, match, ownerID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": ownerID, "keyword": keyword}).WithError(err).Error("Failed to search cars")
		return nil, core.AsQueryError(err, "failed to search cars")
	}
	return cars, nil
}

func (s *sqliteStore) FindOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	car, err := scanCar(s.db.QueryRowContext(ctx,
		"SELECT "+carColumns+" FROM cars WHERE id = ? AND owner_id = ?", id, ownerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NotFoundf("car not found")
		}
		return nil, core.AsQueryError(err, "failed to get car")
	}
	return car, nil
}

func (s *sqliteStore) UpdateOne(ctx context.Context, id, ownerID string, update core.CarUpdate) (*core.Car, error) {
	log := logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.AsStoreError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	car, err := scanCar(tx.QueryRowContext(ctx,
		"SELECT "+carColumns+" FROM cars WHERE id = ? AND owner_id = ?", id, ownerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NotFoundf("car not found")
		}
		return nil, core.AsStoreError(err, "failed to load car")
	}
	update.Apply(car)

	_, err = tx.ExecContext(ctx,
		"UPDATE cars SET title = ?, description = ?, tags = ?, images = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		car.Title, car.Description, encodeList(car.Tags), encodeList(car.Images), car.UpdatedAt.UnixNano(), id, ownerID)
	if err != nil {
		log.WithError(err).Error("Failed to update car")
		return nil, core.AsStoreError(err, "failed to update car")
	}
	if err := indexCar(ctx, tx, car); err != nil {
		return nil, core.AsStoreError(err, "failed to index car")
	}
	if err := tx.Commit(); err != nil {
		return nil, core.AsStoreError(err, "failed to commit car")
	}

	log.Info("Car updated successfully")
	return car, nil
}

func (s *sqliteStore) DeleteOne(ctx context.Context, id, ownerID string) (*core.Car, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.AsStoreError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	car, err := scanCar(tx.QueryRowContext(ctx,
		"SELECT "+carColumns+" FROM cars WHERE id = ? AND owner_id = ?", id, ownerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NotFoundf("car not found")
		}
		return nil, core.AsStoreError(err, "failed to load car")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cars WHERE id = ? AND owner_id = ?", id, ownerID); err != nil {
		return nil, core.AsStoreError(err, "failed to delete car")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM cars_fts WHERE car_id = ?", id); err != nil {
		return nil, core.AsStoreError(err, "failed to unindex car")
	}
	if err := tx.Commit(); err != nil {
		return nil, core.AsStoreError(err, "failed to commit delete")
	}

	logrus.WithFields(logrus.Fields{"user_id": ownerID, "car_id": id}).Info("Car deleted successfully")
	return car, nil
}
