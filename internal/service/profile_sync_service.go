package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/internal/models"
	"github.com/noah-isme/sma-gatepass-api/pkg/directory"
	appErrors "github.com/noah-isme/sma-gatepass-api/pkg/errors"
	"github.com/noah-isme/sma-gatepass-api/pkg/jobs"
)

const (
	defaultSyncPageSize    = 60
	defaultSyncCeiling     = 12 * time.Minute
	defaultSyncPageRetries = 3
	defaultSyncBackoff     = time.Second
)

type profilePager interface {
	ProfilesPage(ctx context.Context, page, pageSize int) (directory.ProfilePage, error)
}

type checkpointRepository interface {
	Create(ctx context.Context, cp *models.SyncCheckpoint) error
	Get(ctx context.Context, runID string) (*models.SyncCheckpoint, error)
	Save(ctx context.Context, cp *models.SyncCheckpoint) (bool, error)
	MarkCancelled(ctx context.Context, runID string) (bool, error)
	FindActive(ctx context.Context) (*models.SyncCheckpoint, error)
	ListRecent(ctx context.Context, limit int) ([]models.SyncCheckpoint, error)
}

type profileWriter interface {
	Upsert(ctx context.Context, profile *models.StudentProfile) error
}

type failedSyncRepository interface {
	Create(ctx context.Context, failure *models.FailedSync) error
	CountByRun(ctx context.Context, runID string) (int, error)
}

type profileCache interface {
	Forget(ctx context.Context, studentID string)
	ForgetAll(ctx context.Context)
}

// SyncTrigger schedules the next invocation of a run.
type SyncTrigger interface {
	Trigger(ctx context.Context, task models.SyncTask) error
}

// ProfileSyncConfig tunes the scheduler.
type ProfileSyncConfig struct {
	PageSize        int
	TimeCeiling     time.Duration
	PageRetries     int
	RetryBackoff    time.Duration
	CountryCode     string
	ExternalTimeout time.Duration
}

// ProfileSyncService mirrors directory profiles page by page. Each invocation
// stops after the time ceiling and hands the remaining pages to its trigger.
type ProfileSyncService struct {
	pager       profilePager
	checkpoints checkpointRepository
	profiles    profileWriter
	failures    failedSyncRepository
	cache       profileCache
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         ProfileSyncConfig
	now         func() time.Time

	mu      sync.RWMutex
	trigger SyncTrigger
}

// ProfileSyncDeps groups the collaborators of ProfileSyncService.
type ProfileSyncDeps struct {
	Pager       profilePager
	Checkpoints checkpointRepository
	Profiles    profileWriter
	Failures    failedSyncRepository
	Cache       profileCache
	Metrics     *MetricsService
	Logger      *zap.Logger
}

// NewProfileSyncService constructs the scheduler. PageRetries of zero keeps the
// default of 3; a negative value disables retries. A trigger must be set with
// SetTrigger before runs can continue past the first invocation.
func NewProfileSyncService(deps ProfileSyncDeps, cfg ProfileSyncConfig) *ProfileSyncService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultSyncPageSize
	}
	if cfg.TimeCeiling <= 0 {
		cfg.TimeCeiling = defaultSyncCeiling
	}
	switch {
	case cfg.PageRetries == 0:
		cfg.PageRetries = defaultSyncPageRetries
	case cfg.PageRetries < 0:
		cfg.PageRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultSyncBackoff
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = defaultExternalTimeout
	}
	return &ProfileSyncService{
		pager:       deps.Pager,
		checkpoints: deps.Checkpoints,
		profiles:    deps.Profiles,
		failures:    deps.Failures,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetTrigger installs the continuation trigger.
func (s *ProfileSyncService) SetTrigger(trigger SyncTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trigger = trigger
}

func (s *ProfileSyncService) currentTrigger() SyncTrigger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trigger
}

// Start opens a new run and schedules its first invocation.
func (s *ProfileSyncService) Start(ctx context.Context) (*models.SyncCheckpoint, error) {
	active, err := s.checkpoints.FindActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active sync")
	}
	if active != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a profile sync is already running").
			WithDetails(map[string]interface{}{"run_id": active.RunID})
	}

	trigger := s.currentTrigger()
	if trigger == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "profile sync trigger not configured")
	}

	cp := &models.SyncCheckpoint{StartedAt: s.now().UTC(), Status: models.SyncStatusRunning}
	if err := s.checkpoints.Create(ctx, cp); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sync checkpoint")
	}
	if err := trigger.Trigger(ctx, models.SyncTask{RunID: cp.RunID}); err != nil {
		s.fail(ctx, cp, fmt.Sprintf("initial trigger failed: %v", err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule profile sync")
	}
	s.logger.Sugar().Infow("profile sync started", "run_id", cp.RunID)
	return cp, nil
}

// Run executes one invocation of task. An empty RunID opens a new run.
func (s *ProfileSyncService) Run(ctx context.Context, task models.SyncTask) (models.SyncOutcome, error) {
	started := s.now()
	cp, err := s.begin(ctx, task, started)
	if err != nil {
		return models.SyncOutcomeFailed, err
	}
	if cp.Terminal {
		return terminalOutcome(cp.Status), nil
	}
	log := s.logger.Sugar().With("run_id", cp.RunID, "invocation", cp.Invocations)
	log.Infow("profile sync invocation started", "start_page", cp.CurrentPage)

	outcome, err := s.page(ctx, cp, started)
	s.metrics.RecordSyncInvocation(outcome)
	log.Infow("profile sync invocation finished",
		"outcome", outcome,
		"current_page", cp.CurrentPage,
		"pages_completed", cp.PagesCompleted,
		"records_synced", cp.RecordsSynced,
	)
	return outcome, err
}

func (s *ProfileSyncService) begin(ctx context.Context, task models.SyncTask, started time.Time) (*models.SyncCheckpoint, error) {
	if task.RunID == "" {
		cp := &models.SyncCheckpoint{CurrentPage: task.StartPage, StartedAt: started.UTC(), Status: models.SyncStatusRunning, Invocations: 1}
		if err := s.checkpoints.Create(ctx, cp); err != nil {
			return nil, fmt.Errorf("create sync checkpoint: %w", err)
		}
		return cp, nil
	}

	cp, err := s.checkpoints.Get(ctx, task.RunID)
	if err != nil {
		return nil, fmt.Errorf("load sync checkpoint %s: %w", task.RunID, err)
	}
	if cp.Terminal {
		return cp, nil
	}
	cp.CurrentPage = task.StartPage
	cp.Invocations++
	return cp, nil
}

func (s *ProfileSyncService) page(ctx context.Context, cp *models.SyncCheckpoint, started time.Time) (models.SyncOutcome, error) {
	for {
		result, err := s.fetch(ctx, cp.CurrentPage)
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown; leave the run resumable from the current page.
				s.save(context.Background(), cp)
				return models.SyncOutcomeContinuing, ctx.Err()
			}
			reason := fmt.Sprintf("page %d: %v", cp.CurrentPage, err)
			s.fail(ctx, cp, reason)
			return models.SyncOutcomeFailed, fmt.Errorf("profile sync %s failed: %w", cp.RunID, err)
		}

		cp.RecordsSynced += s.store(ctx, cp.RunID, result.Records)
		cp.PagesCompleted++
		cp.CurrentPage++
		s.metrics.RecordSyncPage()

		if !result.HasMore {
			cp.Terminal = true
			cp.Status = models.SyncStatusCompleted
			if ok, err := s.checkpoints.Save(ctx, cp); err != nil {
				return models.SyncOutcomeFailed, fmt.Errorf("save completed checkpoint: %w", err)
			} else if !ok {
				return models.SyncOutcomeCancelled, nil
			}
			if s.cache != nil {
				s.cache.ForgetAll(ctx)
			}
			return models.SyncOutcomeCompleted, nil
		}

		if s.now().Sub(started) > s.cfg.TimeCeiling {
			return s.handOff(ctx, cp)
		}

		if ok := s.save(ctx, cp); !ok {
			return models.SyncOutcomeCancelled, nil
		}
	}
}

// handOff persists the cursor and schedules the next invocation unless the run
// was cancelled out-of-band.
func (s *ProfileSyncService) handOff(ctx context.Context, cp *models.SyncCheckpoint) (models.SyncOutcome, error) {
	latest, err := s.checkpoints.Get(ctx, cp.RunID)
	if err != nil {
		return models.SyncOutcomeFailed, fmt.Errorf("reload sync checkpoint: %w", err)
	}
	if latest.Terminal {
		return models.SyncOutcomeCancelled, nil
	}
	if ok := s.save(ctx, cp); !ok {
		return models.SyncOutcomeCancelled, nil
	}

	trigger := s.currentTrigger()
	if trigger == nil {
		s.fail(ctx, cp, "no continuation trigger configured")
		return models.SyncOutcomeFailed, errors.New("profile sync trigger not configured")
	}
	task := models.SyncTask{RunID: cp.RunID, StartPage: cp.CurrentPage}
	if err := trigger.Trigger(ctx, task); err != nil {
		s.fail(ctx, cp, fmt.Sprintf("re-trigger failed: %v", err))
		return models.SyncOutcomeFailed, fmt.Errorf("re-trigger profile sync: %w", err)
	}
	return models.SyncOutcomeContinuing, nil
}

// fetch retries transient directory errors with exponential backoff.
func (s *ProfileSyncService) fetch(ctx context.Context, page int) (directory.ProfilePage, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.PageRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryBackoff << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return directory.ProfilePage{}, ctx.Err()
			case <-timer.C:
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalTimeout)
		start := time.Now()
		result, err := s.pager.ProfilesPage(callCtx, page, s.cfg.PageSize)
		cancel()
		s.metrics.ObserveExternalCall("directory", time.Since(start))
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !directory.IsTransient(err) || ctx.Err() != nil {
			return directory.ProfilePage{}, err
		}
		s.logger.Sugar().Warnw("profile page fetch failed, retrying", "page", page, "attempt", attempt+1, "error", err)
	}
	return directory.ProfilePage{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

// store upserts each record and returns how many were written. Rejected
// records are logged to failed_syncs.
func (s *ProfileSyncService) store(ctx context.Context, runID string, records []directory.Profile) int {
	synced := 0
	now := time.Now().UTC()
	for _, rec := range records {
		profile, reason := s.toProfile(rec, now)
		if reason != "" {
			s.recordFailure(ctx, runID, strings.TrimSpace(string(rec.StudentNumber)), reason)
			continue
		}
		if err := s.profiles.Upsert(ctx, profile); err != nil {
			s.recordFailure(ctx, runID, profile.StudentID, err.Error())
			continue
		}
		if s.cache != nil {
			s.cache.Forget(ctx, profile.StudentID)
		}
		synced++
	}
	return synced
}

func (s *ProfileSyncService) toProfile(rec directory.Profile, now time.Time) (*models.StudentProfile, string) {
	studentID := strings.TrimSpace(string(rec.StudentNumber))
	if studentID == "" {
		return nil, "missing student_number"
	}
	profile := &models.StudentProfile{
		StudentID:    studentID,
		FirstName:    strings.TrimSpace(string(rec.FirstName)),
		LastName:     strings.TrimSpace(string(rec.LastName)),
		LastSyncedAt: now,
	}
	if phone, ok := normalizePhone(string(rec.StudentMobile), s.cfg.CountryCode); ok {
		profile.StudentMobile = &phone
	}
	if phone, ok := normalizePhone(string(rec.GuardianMobile), s.cfg.CountryCode); ok {
		profile.GuardianMobile = &phone
	}
	switch {
	case profile.StudentMobile != nil:
		profile.PreferredContact = profile.StudentMobile
	case profile.GuardianMobile != nil:
		profile.PreferredContact = profile.GuardianMobile
	default:
		return nil, "no valid mobile number"
	}
	return profile, ""
}

func (s *ProfileSyncService) recordFailure(ctx context.Context, runID, studentID, reason string) {
	if studentID == "" {
		studentID = "unknown"
	}
	if s.failures == nil {
		return
	}
	if err := s.failures.Create(ctx, &models.FailedSync{RunID: runID, StudentID: studentID, Error: reason}); err != nil {
		s.logger.Sugar().Warnw("failed to record sync failure", "run_id", runID, "student_id", studentID, "error", err)
	}
}

// save persists progress and reports false when the run is already terminal.
func (s *ProfileSyncService) save(ctx context.Context, cp *models.SyncCheckpoint) bool {
	ok, err := s.checkpoints.Save(ctx, cp)
	if err != nil {
		s.logger.Sugar().Warnw("failed to save sync checkpoint", "run_id", cp.RunID, "error", err)
		return true
	}
	return ok
}

func (s *ProfileSyncService) fail(ctx context.Context, cp *models.SyncCheckpoint, reason string) {
	cp.Terminal = true
	cp.Status = models.SyncStatusFailed
	cp.FailureReason = &reason
	if _, err := s.checkpoints.Save(ctx, cp); err != nil {
		s.logger.Sugar().Errorw("failed to persist sync failure", "run_id", cp.RunID, "reason", reason, "error", err)
		return
	}
	s.logger.Sugar().Errorw("profile sync failed", "run_id", cp.RunID, "reason", reason)
}

// Cancel marks a running run terminal. The in-flight invocation stops at its
// next checkpoint write.
func (s *ProfileSyncService) Cancel(ctx context.Context, runID string) (*models.SyncCheckpoint, error) {
	ok, err := s.checkpoints.MarkCancelled(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel sync")
	}
	cp, err := s.lookup(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "sync run already finished").
			WithDetails(map[string]interface{}{"status": string(cp.Status)})
	}
	s.logger.Sugar().Infow("profile sync cancelled", "run_id", runID)
	return cp, nil
}

// Status reports a run's progress.
func (s *ProfileSyncService) Status(ctx context.Context, runID string) (*models.SyncRunStatus, error) {
	cp, err := s.lookup(ctx, runID)
	if err != nil {
		return nil, err
	}
	status := &models.SyncRunStatus{SyncCheckpoint: *cp}
	if s.failures != nil {
		count, err := s.failures.CountByRun(ctx, runID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sync failures")
		}
		status.FailedRecords = count
	}
	return status, nil
}

// Runs lists recent sync runs, newest first.
func (s *ProfileSyncService) Runs(ctx context.Context, limit int) ([]models.SyncCheckpoint, error) {
	runs, err := s.checkpoints.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sync runs")
	}
	return runs, nil
}

func (s *ProfileSyncService) lookup(ctx context.Context, runID string) (*models.SyncCheckpoint, error) {
	cp, err := s.checkpoints.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sync run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sync run")
	}
	return cp, nil
}

// StartTimer starts a new run every interval unless one is active. An active run
// whose checkpoint has not moved for two ceilings is resumed from its cursor.
func (s *ProfileSyncService) StartTimer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *ProfileSyncService) tick(ctx context.Context) {
	active, err := s.checkpoints.FindActive(ctx)
	if err != nil {
		s.logger.Sugar().Warnw("profile sync timer lookup failed", "error", err)
		return
	}
	if active == nil {
		if _, err := s.Start(ctx); err != nil {
			s.logger.Sugar().Warnw("scheduled profile sync did not start", "error", err)
		}
		return
	}
	if s.now().Sub(active.UpdatedAt) < 2*s.cfg.TimeCeiling {
		return
	}
	trigger := s.currentTrigger()
	if trigger == nil {
		return
	}
	s.logger.Sugar().Warnw("resuming stalled profile sync", "run_id", active.RunID, "page", active.CurrentPage)
	if err := trigger.Trigger(ctx, models.SyncTask{RunID: active.RunID, StartPage: active.CurrentPage}); err != nil {
		s.logger.Sugar().Warnw("failed to resume stalled profile sync", "run_id", active.RunID, "error", err)
	}
}

// HandleJob adapts Run to the worker pool. Errors are logged, not retried;
// a failed invocation has already marked its run terminal.
func (s *ProfileSyncService) HandleJob(ctx context.Context, job jobs.Job[models.SyncTask]) error {
	if _, err := s.Run(ctx, job.Payload); err != nil {
		s.logger.Sugar().Errorw("profile sync invocation error", "job_id", job.ID, "run_id", job.Payload.RunID, "error", err)
	}
	return nil
}

func terminalOutcome(status models.SyncStatus) models.SyncOutcome {
	switch status {
	case models.SyncStatusCompleted:
		return models.SyncOutcomeCompleted
	case models.SyncStatusFailed:
		return models.SyncOutcomeFailed
	default:
		return models.SyncOutcomeCancelled
	}
}
