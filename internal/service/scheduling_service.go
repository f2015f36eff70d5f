package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/duetapp/duet-api/internal/dto"
	"github.com/duetapp/duet-api/internal/models"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

type searchSlotRepository interface {
	SearchAvailable(ctx context.Context, filter models.SlotSearchFilter) ([]models.AvailabilitySlot, int, error)
}

type searchUserRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type slotCreator interface {
	Create(ctx context.Context, ownerID string, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error)
}

// Ranker scores search candidates for a viewer. Implementations may call a
// separate matching system; a scoring failure falls back to unranked order.
type Ranker interface {
	Score(ctx context.Context, viewerID string, candidates []dto.AvailableUser) ([]dto.AvailableUser, error)
}

// SchedulingService is the orchestration layer over slots, conflict checks
// and partner search.
type SchedulingService struct {
	slots     slotCreator
	search    searchSlotRepository
	users     searchUserRepository
	conflicts slotConflictFinder
	ranker    Ranker
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSchedulingService wires the orchestrator.
func NewSchedulingService(
	slots slotCreator,
	search searchSlotRepository,
	users searchUserRepository,
	conflicts slotConflictFinder,
	ranker Ranker,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulingService{
		slots:     slots,
		search:    search,
		users:     users,
		conflicts: conflicts,
		ranker:    ranker,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// BulkCreate creates each requested slot independently. A slot rejected by
// validation, conflict detection or business rules is reported as skipped;
// an infrastructure failure counts as an error. Earlier slots are never
// rolled back.
func (s *SchedulingService) BulkCreate(ctx context.Context, ownerID string, req dto.BulkCreateRequest) (*dto.BulkCreateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	result := &dto.BulkCreateResult{TotalRequested: len(req.Slots)}
	for i, slotReq := range req.Slots {
		slot, err := s.slots.Create(ctx, ownerID, slotReq)
		if err != nil {
			if appErrors.HasCode(err, appErrors.ErrValidation) ||
				appErrors.HasCode(err, appErrors.ErrConflict) ||
				appErrors.HasCode(err, appErrors.ErrBusinessRule) {
				result.Skipped = append(result.Skipped, dto.BulkSkip{
					Index:  i,
					Reason: appErrors.FromError(err).Message,
				})
				continue
			}
			s.logger.Error("bulk slot creation failed",
				zap.String("owner_user_id", ownerID),
				zap.Int("index", i),
				zap.Error(err))
			result.Errors++
			continue
		}
		result.Created = append(result.Created, *slot)
	}
	return result, nil
}

// CheckConflicts probes a time range against the caller's existing slots
// without writing anything.
func (s *SchedulingService) CheckConflicts(ctx context.Context, ownerID string, req dto.ConflictCheckRequest) (*dto.ConflictCheckResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}

	conflicts, err := s.conflicts.FindConflicts(ctx, nil, ownerID, truncateToDate(req.Date), req.StartTime, req.EndTime, req.ExcludeSlotID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 && s.metrics != nil {
		s.metrics.IncConflictDetected()
	}
	return &dto.ConflictCheckResult{
		HasConflict: len(conflicts) > 0,
		Conflicts:   conflicts,
	}, nil
}

// SearchAvailableUsers finds users with open bookable slots matching the
// filter, grouped per owner. The viewer's own slots are excluded. Results
// are cached per filter; a ranker failure degrades to unranked order.
func (s *SchedulingService) SearchAvailableUsers(ctx context.Context, viewerID string, req dto.SearchAvailableRequest) ([]dto.AvailableUser, int, error) {
	if req.StartTime != "" {
		if _, err := minutesOfDay(req.StartTime); err != nil {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
		}
	}
	if req.EndTime != "" {
		if _, err := minutesOfDay(req.EndTime); err != nil {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
		}
	}

	cacheKey := searchCacheKey(viewerID, req)
	var cached searchCachePayload
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached.Users, cached.Total, nil
	}

	filter := models.SlotSearchFilter{
		ExcludeOwnerID: viewerID,
		DateFrom:       req.DateFrom,
		DateTo:         req.DateTo,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Page:           req.Page,
		PageSize:       req.PageSize,
	}
	if req.DateType != "" {
		dt := models.DateType(req.DateType)
		filter.DateType = &dt
	}

	slots, total, err := s.search.SearchAvailable(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search slots")
	}

	users, err := s.groupByOwner(ctx, slots)
	if err != nil {
		return nil, 0, err
	}

	if s.ranker != nil && len(users) > 0 {
		ranked, err := s.ranker.Score(ctx, viewerID, users)
		if err != nil {
			s.logger.Warn("ranking failed, returning unranked results", zap.Error(err))
		} else {
			sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
			users = ranked
		}
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, searchCachePayload{Users: users, Total: total}, 0)
	}
	return users, total, nil
}

// InvalidateSearchCache drops cached search results. Called after any
// write that changes slot availability.
func (s *SchedulingService) InvalidateSearchCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "search:available:*"); err != nil {
		s.logger.Warn("failed to invalidate search cache", zap.Error(err))
	}
}

func (s *SchedulingService) groupByOwner(ctx context.Context, slots []models.AvailabilitySlot) ([]dto.AvailableUser, error) {
	if len(slots) == 0 {
		return nil, nil
	}

	byOwner := make(map[string][]models.AvailabilitySlot)
	var order []string
	for _, slot := range slots {
		if _, seen := byOwner[slot.OwnerUserID]; !seen {
			order = append(order, slot.OwnerUserID)
		}
		byOwner[slot.OwnerUserID] = append(byOwner[slot.OwnerUserID], slot)
	}

	owners, err := s.users.FindByIDs(ctx, order)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load users")
	}
	names := make(map[string]string, len(owners))
	for _, u := range owners {
		names[u.ID] = u.DisplayName
	}

	users := make([]dto.AvailableUser, 0, len(order))
	for _, ownerID := range order {
		users = append(users, dto.AvailableUser{
			UserID:      ownerID,
			DisplayName: names[ownerID],
			Slots:       byOwner[ownerID],
		})
	}
	return users, nil
}

type searchCachePayload struct {
	Users []dto.AvailableUser `json:"users"`
	Total int                 `json:"total"`
}

func searchCacheKey(viewerID string, req dto.SearchAvailableRequest) string {
	from, to := "", ""
	if req.DateFrom != nil {
		from = req.DateFrom.Format("2006-01-02")
	}
	if req.DateTo != nil {
		to = req.DateTo.Format("2006-01-02")
	}
	return fmt.Sprintf("search:available:%s:%s:%s:%s:%s:%s:%d:%d",
		viewerID, from, to, req.StartTime, req.EndTime, req.DateType, req.Page, req.PageSize)
}
