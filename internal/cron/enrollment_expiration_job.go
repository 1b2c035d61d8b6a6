package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/notifications"
	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/metrics"
)

const (
	enrollmentExpirationJobName = "enrollment-expiration"
	defaultExpirationBatch      = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type enrollmentExpirer interface {
	DueForExpiration(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error)
	ExpireTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, now time.Time) (bool, error)
}

// EnrollmentExpirationJobParams configures the access expiration sweep.
type EnrollmentExpirationJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Enrollments enrollmentExpirer
	Notifier    notifications.Notifier
	Metrics     *metrics.CronJobMetrics
	BatchSize   int
}

// NewEnrollmentExpirationJob builds the sweep that flags approved enrollments
// whose access term ended and revokes their catalog membership.
func NewEnrollmentExpirationJob(params EnrollmentExpirationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Enrollments == nil {
		return nil, fmt.Errorf("enrollments service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpirationBatch
	}
	return &enrollmentExpirationJob{
		logg:        params.Logger,
		db:          params.DB,
		enrollments: params.Enrollments,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		batch:       batch,
		now:         time.Now,
	}, nil
}

type enrollmentExpirationJob struct {
	logg        *logger.Logger
	db          txRunner
	enrollments enrollmentExpirer
	notifier    notifications.Notifier
	metrics     *metrics.CronJobMetrics
	batch       int
	now         func() time.Time
}

func (j *enrollmentExpirationJob) Name() string { return enrollmentExpirationJobName }

// Run processes every due enrollment in its own transaction. A failed record
// is reported and left for the next run; it never stops the rest.
func (j *enrollmentExpirationJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	attempted := make(map[uuid.UUID]struct{})
	var (
		errs                     []error
		expired, skipped, failed int
	)

	for {
		rows, err := j.enrollments.DueForExpiration(ctx, now, j.batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("query expiring enrollments: %w", err))
			break
		}
		fresh := 0
		for i := range rows {
			enrollment := rows[i]
			if _, seen := attempted[enrollment.ID]; seen {
				continue
			}
			attempted[enrollment.ID] = struct{}{}
			fresh++

			changed, err := j.expire(ctx, &enrollment, now)
			switch {
			case err != nil:
				failed++
				errs = append(errs, fmt.Errorf("expire enrollment %s: %w", enrollment.ID, err))
			case changed:
				expired++
				j.notify(ctx, enrollment)
			default:
				skipped++
			}
		}
		if fresh == 0 || len(rows) < j.batch {
			break
		}
	}

	j.metrics.AddRecords(enrollmentExpirationJobName, "expired", expired)
	j.metrics.AddRecords(enrollmentExpirationJobName, "skipped", skipped)
	j.metrics.AddRecords(enrollmentExpirationJobName, "failed", failed)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired": expired,
		"skipped": skipped,
		"failed":  failed,
	})
	j.logg.Info(logCtx, "enrollment expiration sweep complete")
	return multierr.Combine(errs...)
}

func (j *enrollmentExpirationJob) expire(ctx context.Context, enrollment *models.Enrollment, now time.Time) (bool, error) {
	var changed bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		changed, err = j.enrollments.ExpireTx(ctx, tx, enrollment, now)
		return err
	})
	return changed, err
}

func (j *enrollmentExpirationJob) notify(ctx context.Context, enrollment models.Enrollment) {
	if j.notifier == nil {
		return
	}
	link := fmt.Sprintf("/enrollments/%s", enrollment.ID)
	j.notifier.Notify(ctx, notifications.Message{
		UserID:  enrollment.StudentID,
		Type:    enums.NotificationTypeEnrollment,
		Title:   "Course access expired",
		Message: "Your access period for this course has ended.",
		Link:    &link,
	})
}
