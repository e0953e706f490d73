package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/database"
	"tcmclinic/internal/lineimport"
	"tcmclinic/internal/models"
	"tcmclinic/internal/search"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SearchLimit caps the number of patients returned by a search
const SearchLimit = 50

// PatientService handles patient reads and manual edits
type PatientService struct {
	collection *mongo.Collection
	loc        *time.Location
	now        func() time.Time
}

// NewPatientService creates a patient service
func NewPatientService(db *database.MongoDB, loc *time.Location) *PatientService {
	if loc == nil {
		loc = time.Local
	}
	return &PatientService{
		collection: db.Collection(database.CollectionPatients),
		loc:        loc,
		now:        time.Now,
	}
}

// Search returns up to SearchLimit patients matching the criteria, most recently updated first
func (s *PatientService) Search(ctx context.Context, criteria search.Criteria) ([]models.Patient, error) {
	opts := options.Find().
		SetLimit(SearchLimit).
		SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	cursor, err := s.collection.Find(ctx, criteria.Filter(), opts)
	if err != nil {
		return nil, apperr.Persistence("failed to search patients", err)
	}
	defer cursor.Close(ctx)

	patients := []models.Patient{}
	if err := cursor.All(ctx, &patients); err != nil {
		return nil, apperr.Persistence("failed to decode patients", err)
	}
	return patients, nil
}

// Create inserts a new patient from a manual entry
func (s *PatientService) Create(ctx context.Context, req *models.CreatePatientRequest) (primitive.ObjectID, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return primitive.NilObjectID, apperr.Validation("name is required")
	}

	now := s.now()
	records := req.HistoryRecords
	if records == nil {
		records = []models.HistoryRecord{}
	}
	for i := range records {
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		records[i].UpdatedAt = now
	}

	patient := models.Patient{
		Name:                name,
		ExternalMessagingID: strings.TrimSpace(req.ExternalMessagingID),
		HistoryRecords:      records,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	result, err := s.collection.InsertOne(ctx, patient)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, apperr.Validation("a patient with LINE id %s already exists", patient.ExternalMessagingID)
		}
		return primitive.NilObjectID, apperr.Persistence("failed to create patient", err)
	}

	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, apperr.Persistence("failed to create patient", fmt.Errorf("unexpected id type %T", result.InsertedID))
	}
	return id, nil
}

// Get returns one patient by hex id
func (s *PatientService) Get(ctx context.Context, hexID string) (*models.Patient, error) {
	id, err := parseObjectID(hexID)
	if err != nil {
		return nil, err
	}

	var patient models.Patient
	err = s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&patient)
	if err == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("patient not found")
	}
	if err != nil {
		return nil, apperr.Persistence("failed to get patient", err)
	}
	return &patient, nil
}

// UpdateLatestRecord edits the record with the most recent visit date
func (s *PatientService) UpdateLatestRecord(ctx context.Context, hexID string, req *models.UpdateRecordRequest) (int64, error) {
	patient, err := s.Get(ctx, hexID)
	if err != nil {
		return 0, err
	}

	latest := patient.LatestRecordIndex()
	if latest < 0 {
		return 0, apperr.NotFound("no history records found")
	}

	now := s.now()
	symptoms := req.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	syndromes := req.Syndromes
	if syndromes == nil {
		syndromes = []string{}
	}

	filter := bson.M{
		"_id":                      patient.ID,
		"historyRecords.visitDate": patient.HistoryRecords[latest].VisitDate,
	}
	update := bson.M{"$set": bson.M{
		"historyRecords.$.symptoms":  symptoms,
		"historyRecords.$.syndromes": syndromes,
		"historyRecords.$.notes":     req.Notes,
		"historyRecords.$.updatedAt": now,
		"updatedAt":                  now,
	}}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, apperr.Persistence("failed to update patient record", err)
	}
	if result.MatchedCount == 0 {
		return 0, apperr.NotFound("failed to update record")
	}
	return result.ModifiedCount, nil
}

// WeeklyRecords returns patients with records inside r, each carrying only
// the records that fall in the range.
func (s *PatientService) WeeklyRecords(ctx context.Context, r models.WeekRange) ([]models.Patient, error) {
	inRange := bson.M{"$gte": r.Start, "$lte": r.End}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"historyRecords": bson.M{"$elemMatch": bson.M{"visitDate": inRange}}}}},
		{{Key: "$project", Value: bson.M{
			"name":       1,
			"lineUserId": 1,
			"createdAt":  1,
			"updatedAt":  1,
			"historyRecords": bson.M{"$filter": bson.M{
				"input": "$historyRecords",
				"as":    "rec",
				"cond": bson.M{"$and": bson.A{
					bson.M{"$gte": bson.A{"$$rec.visitDate", r.Start}},
					bson.M{"$lte": bson.A{"$$rec.visitDate", r.End}},
				}},
			}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "historyRecords.visitDate", Value: -1}, {Key: "name", Value: 1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Persistence("failed to fetch weekly records", err)
	}
	defer cursor.Close(ctx)

	patients := []models.Patient{}
	if err := cursor.All(ctx, &patients); err != nil {
		return nil, apperr.Persistence("failed to decode weekly records", err)
	}
	return patients, nil
}

// WeekRange resolves the start/end query values. Both blank selects the current
// Monday to Sunday week; dates are read in the clinic location and widened to
// whole days.
func (s *PatientService) WeekRange(startStr, endStr string) (models.WeekRange, error) {
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)
	if startStr == "" && endStr == "" {
		now := s.now().In(s.loc)
		return models.WeekRange{Start: lineimport.WeekStart(now), End: lineimport.WeekEnd(now)}, nil
	}
	if startStr == "" || endStr == "" {
		return models.WeekRange{}, apperr.Validation("start and end must be given together")
	}

	start, err := parseDay(startStr, s.loc)
	if err != nil {
		return models.WeekRange{}, apperr.Validation("invalid start date %q", startStr)
	}
	end, err := parseDay(endStr, s.loc)
	if err != nil {
		return models.WeekRange{}, apperr.Validation("invalid end date %q", endStr)
	}

	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.loc)
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), s.loc)
	if end.Before(start) {
		return models.WeekRange{}, apperr.Validation("end must not be before start")
	}
	return models.WeekRange{Start: start, End: end}, nil
}

func parseDay(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func parseObjectID(hexID string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid patient ID")
	}
	return id, nil
}
