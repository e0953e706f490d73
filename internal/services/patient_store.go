package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tcmclinic/internal/database"
	"tcmclinic/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrDuplicatePatient is returned by Insert when another patient already owns the identity
var ErrDuplicatePatient = errors.New("patient with this identity already exists")

// MergeKey identifies the patient an import merges into. The external
// messaging id wins when present; otherwise the exact name is used.
type MergeKey struct {
	ExternalID string
	Name       string
}

// Identity returns the lock key for this merge target
func (k MergeKey) Identity() string {
	if k.ExternalID != "" {
		return "ext:" + k.ExternalID
	}
	return "name:" + k.Name
}

// Filter returns the MongoDB filter that selects the merge target
func (k MergeKey) Filter() bson.M {
	if k.ExternalID != "" {
		return bson.M{"lineUserId": k.ExternalID}
	}
	return bson.M{"name": k.Name}
}

// PatientStore is the storage used by the merge resolver
type PatientStore interface {
	// FindForMerge returns the matching patient, or nil when there is none
	FindForMerge(ctx context.Context, key MergeKey) (*models.Patient, error)
	Insert(ctx context.Context, patient *models.Patient) (primitive.ObjectID, error)
	AppendRecords(ctx context.Context, id primitive.ObjectID, records []models.HistoryRecord, updatedAt time.Time) error
}

// MongoPatientStore implements PatientStore on the patients collection
type MongoPatientStore struct {
	collection *mongo.Collection
}

// NewMongoPatientStore creates a store on db's patients collection
func NewMongoPatientStore(db *database.MongoDB) *MongoPatientStore {
	return &MongoPatientStore{collection: db.Collection(database.CollectionPatients)}
}

// FindForMerge looks up the patient selected by key
func (s *MongoPatientStore) FindForMerge(ctx context.Context, key MergeKey) (*models.Patient, error) {
	var patient models.Patient
	err := s.collection.FindOne(ctx, key.Filter()).Decode(&patient)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	return &patient, nil
}

// Insert stores a new patient and returns its id
func (s *MongoPatientStore) Insert(ctx context.Context, patient *models.Patient) (primitive.ObjectID, error) {
	result, err := s.collection.InsertOne(ctx, patient)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, ErrDuplicatePatient
		}
		return primitive.NilObjectID, fmt.Errorf("failed to insert patient: %w", err)
	}

	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	return id, nil
}

// AppendRecords pushes records onto a patient's history and bumps updatedAt
func (s *MongoPatientStore) AppendRecords(ctx context.Context, id primitive.ObjectID, records []models.HistoryRecord, updatedAt time.Time) error {
	update := bson.M{
		"$push": bson.M{"historyRecords": bson.M{"$each": records}},
		"$set":  bson.M{"updatedAt": updatedAt},
	}
	if len(records) == 0 {
		update = bson.M{"$set": bson.M{"updatedAt": updatedAt}}
	}

	result, err := s.collection.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("failed to append history records: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("patient %s disappeared during merge", id.Hex())
	}
	return nil
}
