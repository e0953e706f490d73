package services

import (
	"context"
	"errors"
	"time"

	"tcmclinic/internal/apperr"
	"tcmclinic/internal/models"
)

// MergeResolver inserts a candidate patient or merges its weekly records into
// the existing patient with the same identity.
type MergeResolver struct {
	store  PatientStore
	locker KeyedLocker
	now    func() time.Time
}

// NewMergeResolver creates a resolver. A nil locker falls back to an in-process lock.
func NewMergeResolver(store PatientStore, locker KeyedLocker) *MergeResolver {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &MergeResolver{store: store, locker: locker, now: time.Now}
}

// Resolve commits candidate. Existing weeks are never overwritten: only records
// whose visit date is not already present are appended.
func (r *MergeResolver) Resolve(ctx context.Context, key MergeKey, candidate *models.Patient) (*models.UpsertResult, error) {
	unlock, err := r.locker.Lock(ctx, key.Identity())
	if err != nil {
		return nil, apperr.Persistence("failed to lock patient for merge", err)
	}
	defer unlock()

	existing, err := r.store.FindForMerge(ctx, key)
	if err != nil {
		return nil, apperr.Persistence("failed to look up patient", err)
	}

	if existing == nil {
		id, err := r.store.Insert(ctx, candidate)
		switch {
		case err == nil:
			candidate.ID = id
			return &models.UpsertResult{Upserted: true, PatientID: id.Hex()}, nil
		case errors.Is(err, ErrDuplicatePatient):
			// another instance inserted the same identity first
			existing, err = r.store.FindForMerge(ctx, key)
			if err != nil {
				return nil, apperr.Persistence("failed to look up patient", err)
			}
			if existing == nil {
				return nil, apperr.Persistence("failed to insert patient", ErrDuplicatePatient)
			}
		default:
			return nil, apperr.Persistence("failed to insert patient", err)
		}
	}

	fresh := NewRecords(existing.HistoryRecords, candidate.HistoryRecords)
	if err := r.store.AppendRecords(ctx, existing.ID, fresh, r.now()); err != nil {
		return nil, apperr.Persistence("failed to merge history records", err)
	}
	GetMetrics().RecordAppended(len(fresh))

	return &models.UpsertResult{
		Upserted:  false,
		PatientID: existing.ID.Hex(),
		Appended:  len(fresh),
	}, nil
}

// NewRecords returns the candidates whose visit date, compared at millisecond
// precision, is absent from existing. Order of candidates is kept.
func NewRecords(existing, candidates []models.HistoryRecord) []models.HistoryRecord {
	seen := make(map[int64]struct{}, len(existing)+len(candidates))
	for _, rec := range existing {
		seen[rec.VisitDate.UnixMilli()] = struct{}{}
	}

	fresh := make([]models.HistoryRecord, 0, len(candidates))
	for _, rec := range candidates {
		k := rec.VisitDate.UnixMilli()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		fresh = append(fresh, rec)
	}
	return fresh
}
