// Package mongostore implements store.Store on MongoDB. Collection and field
// names match the documents the Mongoose backend wrote, so an existing
// database can be served as is.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/adityajain-27/medical-ai-sub000/store"
)

const (
	usersCollection       = "users"
	assessmentsCollection = "assessments"
	patientsCollection    = "doctorpatients"
	intakesCollection     = "intakerequests"
)

type Store struct {
	client      *mongo.Client
	users       *mongo.Collection
	assessments *mongo.Collection
	patients    *mongo.Collection
	intakes     *mongo.Collection
	now         func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		client:      client,
		users:       db.Collection(usersCollection),
		assessments: db.Collection(assessmentsCollection),
		patients:    db.Collection(patientsCollection),
		intakes:     db.Collection(intakesCollection),
		now:         time.Now,
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.users, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.patients, mongo.IndexModel{Keys: bson.D{{Key: "patientId", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.patients, mongo.IndexModel{Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{s.assessments, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{s.assessments, mongo.IndexModel{Keys: bson.D{{Key: "doctorPatientId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{s.intakes, mongo.IndexModel{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// objectID parses a hex id. Malformed ids can never match a document, so
// they are reported as not found.
func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, store.ErrNotFound
	}
	return oid, nil
}

func objectIDs(ids []string) []bson.ObjectID {
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := bson.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	return oids
}

func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate
	default:
		return fmt.Errorf("mongostore: %s: %w", op, err)
	}
}

func newestFirst() bson.D {
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}
