package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/models"
)

var clinicTZ = time.FixedZone("CST", 8*60*60)

func week(day int) time.Time {
	return time.Date(2025, 1, day, 0, 0, 0, 0, clinicTZ)
}

func record(visit time.Time, symptoms ...string) models.HistoryRecord {
	return models.HistoryRecord{VisitDate: visit, Symptoms: symptoms, Syndromes: []string{}}
}

func TestMergeResolver_InsertsNewPatient(t *testing.T) {
	store := &memoryPatientStore{}
	resolver := NewMergeResolver(store, nil)

	candidate := &models.Patient{Name: "王小明", HistoryRecords: []models.HistoryRecord{record(week(6), "頭痛")}}
	result, err := resolver.Resolve(context.Background(), MergeKey{Name: "王小明"}, candidate)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !result.Upserted {
		t.Error("Expected upserted=true for a new patient")
	}
	if result.PatientID == "" || result.PatientID != candidate.ID.Hex() {
		t.Errorf("Expected patient id to be reported, got %q", result.PatientID)
	}
	if store.inserts != 1 {
		t.Errorf("Expected 1 insert, got %d", store.inserts)
	}
}

func TestMergeResolver_AppendsOnlyNewWeeks(t *testing.T) {
	existing := &models.Patient{
		Name:                "王小明",
		ExternalMessagingID: "U123",
		HistoryRecords:      []models.HistoryRecord{record(week(6), "頭痛")},
	}
	store := &memoryPatientStore{}
	store.Insert(context.Background(), existing)

	resolver := NewMergeResolver(store, nil)
	fixed := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	resolver.now = func() time.Time { return fixed }

	candidate := &models.Patient{
		Name: "other name",
		HistoryRecords: []models.HistoryRecord{
			record(week(6), "失眠"), // already present, must not overwrite
			record(week(13), "眩暈"),
		},
	}

	result, err := resolver.Resolve(context.Background(), MergeKey{ExternalID: "U123", Name: "other name"}, candidate)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Upserted || result.Appended != 1 {
		t.Errorf("Expected {upserted:false appended:1}, got %+v", result)
	}

	stored := store.only()
	if stored == nil {
		t.Fatal("Expected a single stored patient")
	}
	if len(stored.HistoryRecords) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(stored.HistoryRecords))
	}
	if stored.HistoryRecords[0].Symptoms[0] != "頭痛" {
		t.Errorf("Existing week was overwritten: %v", stored.HistoryRecords[0].Symptoms)
	}
	if !stored.UpdatedAt.Equal(fixed) {
		t.Errorf("Expected updatedAt %v, got %v", fixed, stored.UpdatedAt)
	}
}

func TestMergeResolver_NothingToAppend(t *testing.T) {
	store := &memoryPatientStore{}
	store.Insert(context.Background(), &models.Patient{Name: "a", HistoryRecords: []models.HistoryRecord{record(week(6))}})

	result, err := NewMergeResolver(store, nil).Resolve(context.Background(), MergeKey{Name: "a"},
		&models.Patient{Name: "a", HistoryRecords: []models.HistoryRecord{record(week(6))}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Upserted || result.Appended != 0 || result.PatientID == "" {
		t.Errorf("Expected {upserted:false appended:0 patientId}, got %+v", result)
	}
}

func TestMergeResolver_DuplicateInsertFallsBackToMerge(t *testing.T) {
	inner := &memoryPatientStore{}
	inner.Insert(context.Background(), &models.Patient{Name: "a", ExternalMessagingID: "U1"})
	store := &racingStore{memoryPatientStore: inner}

	result, err := NewMergeResolver(store, nil).Resolve(context.Background(), MergeKey{ExternalID: "U1"},
		&models.Patient{Name: "a", ExternalMessagingID: "U1", HistoryRecords: []models.HistoryRecord{record(week(6))}})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Upserted || result.Appended != 1 {
		t.Errorf("Expected merge after duplicate insert, got %+v", result)
	}
}

func TestMergeResolver_StoreFailures(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name  string
		store *memoryPatientStore
	}{
		{"find fails", &memoryPatientStore{findErr: boom}},
		{"insert fails", &memoryPatientStore{insertErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMergeResolver(tt.store, nil).Resolve(context.Background(), MergeKey{Name: "a"}, &models.Patient{Name: "a"})
			if !apperr.Is(err, apperr.KindPersistence) {
				t.Errorf("Expected persistence error, got %v", err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("Expected cause to be preserved, got %v", err)
			}
		})
	}
}

func TestMergeResolver_ConcurrentImportsCreateOnePatient(t *testing.T) {
	store := &memoryPatientStore{}
	resolver := NewMergeResolver(store, NewLocalLocker())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidate := &models.Patient{Name: "王小明", HistoryRecords: []models.HistoryRecord{record(week(6), "頭痛")}}
			if _, err := resolver.Resolve(context.Background(), MergeKey{Name: "王小明"}, candidate); err != nil {
				t.Errorf("Resolve failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stored := store.only()
	if stored == nil {
		t.Fatalf("Expected exactly one patient, got %d", len(store.patients))
	}
	if len(stored.HistoryRecords) != 1 {
		t.Errorf("Expected 1 record after concurrent merges, got %d", len(stored.HistoryRecords))
	}
}

func TestNewRecords(t *testing.T) {
	existing := []models.HistoryRecord{record(week(6))}
	// same instant in another zone is the same week
	sameInstant := record(week(6).In(time.UTC))
	candidates := []models.HistoryRecord{sameInstant, record(week(13)), record(week(13)), record(week(20))}

	fresh := NewRecords(existing, candidates)
	if len(fresh) != 2 {
		t.Fatalf("Expected 2 fresh records, got %d", len(fresh))
	}
	if !fresh[0].VisitDate.Equal(week(13)) || !fresh[1].VisitDate.Equal(week(20)) {
		t.Errorf("Unexpected fresh records: %+v", fresh)
	}
}
