package jobs

import (
	"context"
	"errors"
	"time"

	"tcmclinic/internal/logging"
	"tcmclinic/internal/models"
	"tcmclinic/internal/services"

	"github.com/sirupsen/logrus"
)

// LineSyncName is the scheduler name of the LINE user sync
const LineSyncName = "line_user_sync"

// LineSyncer links patients to LINE accounts
type LineSyncer interface {
	Run(ctx context.Context) (*models.LineSyncReport, error)
}

// LineSyncJob runs the LINE user sync on a schedule
type LineSyncJob struct {
	syncer  LineSyncer
	timeout time.Duration
}

// NewLineSyncJob creates the scheduled LINE sync. Each run is bounded by timeout.
func NewLineSyncJob(syncer LineSyncer, timeout time.Duration) *LineSyncJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &LineSyncJob{syncer: syncer, timeout: timeout}
}

func (j *LineSyncJob) Name() string { return LineSyncName }

// Run performs one sync. A sync already started through the API is not an error.
func (j *LineSyncJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	report, err := j.syncer.Run(ctx)
	if errors.Is(err, services.ErrSyncInProgress) {
		logging.L().Info("⏭️ [LINE-SYNC] Skipped, a sync is already running")
		return nil
	}
	if err != nil {
		return err
	}

	st := report.Stats
	logging.L().WithFields(logrus.Fields{
		"total":          st.Total,
		"synced":         st.Synced,
		"already_synced": st.AlreadySynced,
		"no_match":       st.NoMatch,
		"errors":         st.Errors,
	}).Info("🔗 [LINE-SYNC] Scheduled sync finished")
	return nil
}
