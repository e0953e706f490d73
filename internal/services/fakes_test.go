package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"tcmclinic/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryPatientStore is an in-memory PatientStore
type memoryPatientStore struct {
	mu       sync.Mutex
	patients []*models.Patient

	// failures injected by tests
	findErr   error
	insertErr error
	appendErr error

	inserts int
	appends int
}

func (m *memoryPatientStore) FindForMerge(_ context.Context, key MergeKey) (*models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, p := range m.patients {
		if key.ExternalID != "" && p.ExternalMessagingID == key.ExternalID {
			return clonePatient(p), nil
		}
		if key.ExternalID == "" && p.Name == key.Name {
			return clonePatient(p), nil
		}
	}
	return nil, nil
}

func (m *memoryPatientStore) Insert(_ context.Context, patient *models.Patient) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return primitive.NilObjectID, m.insertErr
	}
	if patient.ExternalMessagingID != "" {
		for _, p := range m.patients {
			if p.ExternalMessagingID == patient.ExternalMessagingID {
				return primitive.NilObjectID, ErrDuplicatePatient
			}
		}
	}

	stored := clonePatient(patient)
	stored.ID = primitive.NewObjectID()
	m.patients = append(m.patients, stored)
	m.inserts++
	return stored.ID, nil
}

func (m *memoryPatientStore) AppendRecords(_ context.Context, id primitive.ObjectID, records []models.HistoryRecord, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return m.appendErr
	}
	for _, p := range m.patients {
		if p.ID == id {
			p.HistoryRecords = append(p.HistoryRecords, records...)
			p.UpdatedAt = updatedAt
			m.appends++
			return nil
		}
	}
	return errors.New("patient not found")
}

func (m *memoryPatientStore) only() *models.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.patients) != 1 {
		return nil
	}
	return clonePatient(m.patients[0])
}

func clonePatient(p *models.Patient) *models.Patient {
	c := *p
	c.HistoryRecords = append([]models.HistoryRecord(nil), p.HistoryRecords...)
	return &c
}

// racingStore reports no patient on the first lookup, then rejects the insert
// as a duplicate, as happens when another instance wins the insert.
type racingStore struct {
	*memoryPatientStore
	lookups int
}

func (r *racingStore) FindForMerge(ctx context.Context, key MergeKey) (*models.Patient, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.memoryPatientStore.FindForMerge(ctx, key)
}
