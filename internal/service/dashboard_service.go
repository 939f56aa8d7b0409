package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/guardianlink/guardianlink-api/internal/dto"
	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
)

type activeStudentCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type activeTeacherCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type pendingRequestCounter interface {
	CountPending(ctx context.Context) (int, error)
	HasPending(ctx context.Context, teacherID string) (bool, error)
}

type feeTotalsProvider interface {
	Totals(ctx context.Context) (int64, int64, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool)
}

const adminSummaryCacheKey = "dashboard:admin:summary"

// summaryInvalidator is what mutating services hold onto so the cached admin
// counters refresh right after a change instead of waiting out the TTL.
// *DashboardService implements it.
type summaryInvalidator interface {
	InvalidateAdminSummary(ctx context.Context)
}

// DashboardService assembles the landing-view summaries. The admin summary is
// cached; teacher summaries are cheap enough to compute per request.
type DashboardService struct {
	students  activeStudentCounter
	teachers  activeTeacherCounter
	requests  pendingRequestCounter
	fees      feeTotalsProvider
	directory teacherDirectory
	cache     summaryCache
	metrics   cacheMetrics
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewDashboardService creates a service instance. cache and metrics may be nil.
func NewDashboardService(
	students activeStudentCounter,
	teachers activeTeacherCounter,
	requests pendingRequestCounter,
	fees feeTotalsProvider,
	directory teacherDirectory,
	cache summaryCache,
	metrics cacheMetrics,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &DashboardService{
		students:  students,
		teachers:  teachers,
		requests:  requests,
		fees:      fees,
		directory: directory,
		cache:     cache,
		metrics:   metrics,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// AdminSummary returns the admin landing counters, served from cache when warm.
func (s *DashboardService) AdminSummary(ctx context.Context) (*dto.AdminDashboardSummary, error) {
	if s.cache != nil {
		var cached dto.AdminDashboardSummary
		if err := s.cache.Get(ctx, adminSummaryCacheKey, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true)
			}
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false)
		}
	}

	summary := &dto.AdminDashboardSummary{}

	students, err := s.students.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	summary.ActiveStudents = students

	teachers, err := s.teachers.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	summary.ActiveTeachers = teachers

	pending, err := s.requests.CountPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending requests")
	}
	summary.PendingRoleRequests = pending

	due, paid, err := s.fees.Totals(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total fees")
	}
	summary.FeesDue = due
	summary.FeesCollected = paid

	if s.cache != nil {
		if err := s.cache.Set(ctx, adminSummaryCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// TeacherSummary returns the caller's grants and pending-request state.
func (s *DashboardService) TeacherSummary(ctx context.Context, claims *models.JWTClaims) (*dto.TeacherDashboardSummary, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	teacher, err := s.directory.FindByIdentity(ctx, claims)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A teacher account with no directory record has nothing
			// assigned yet.
			return &dto.TeacherDashboardSummary{
				AssignedSubjects: []string{},
				AssignedClasses:  []string{},
			}, nil
		}
		return nil, err
	}

	pending, err := s.requests.HasPending(ctx, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}

	summary := &dto.TeacherDashboardSummary{
		AssignedSubjects: teacher.AssignedSubjects,
		AssignedClasses:  teacher.AssignedClasses,
		HasPendingRequest: pending,
	}
	if summary.AssignedSubjects == nil {
		summary.AssignedSubjects = []string{}
	}
	if summary.AssignedClasses == nil {
		summary.AssignedClasses = []string{}
	}
	return summary, nil
}

// InvalidateAdminSummary drops the cached admin counters. Callers invoke it
// after mutations that change the counts.
func (s *DashboardService) InvalidateAdminSummary(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, adminSummaryCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
