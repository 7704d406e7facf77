package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-and-tell/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActionPoints maps each known action type to its points.
var ActionPoints = map[models.ActionType]int64{
	models.ActionTestimonySeen:        3,
	models.ActionTestimonyHeard:       2,
	models.ActionTestimonyExperienced: 5,
	models.ActionSoulAdded:            10,
	models.ActionShare:                2,
}

// PointsFor resolves the points for an action. Unknown actions are worth 0.
func PointsFor(action models.ActionType) int64 {
	return ActionPoints[action]
}

const (
	DefaultLeaderboardLimit = 100
	MaxLeaderboardLimit     = 500
)

// AwardResult is what AwardPoints reports back to a caller.
type AwardResult struct {
	Success bool  `json:"success"`
	Points  int64 `json:"points"`
}

// LeaderboardEntry is a summary row joined with its owner's display fields.
type LeaderboardEntry struct {
	WitnessProfileID            string  `json:"witness_profile_id"`
	TotalPoints                 int64   `json:"total_points"`
	TestimoniesCount            int64   `json:"testimonies_count"`
	TestimoniesSeenCount        int64   `json:"testimonies_seen_count"`
	TestimoniesHeardCount       int64   `json:"testimonies_heard_count"`
	TestimoniesExperiencedCount int64   `json:"testimonies_experienced_count"`
	SoulsCount                  int64   `json:"souls_count"`
	SharesCount                 int64   `json:"shares_count"`
	Name                        string  `json:"name"`
	Role                        string  `json:"role"`
	PhotoURI                    *string `json:"photo_uri"`
}

// ReconcileResult describes one summary rebuilt from the ledger.
type ReconcileResult struct {
	WitnessProfileID string                   `json:"witness_profile_id"`
	Drifted          bool                     `json:"drifted"`
	Before           models.UserPointsSummary `json:"before"`
	After            models.UserPointsSummary `json:"after"`
}

// ReconcileReport aggregates a ReconcileAll run.
type ReconcileReport struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// TransactionPage is one page of a profile's ledger history.
type TransactionPage struct {
	Transactions []models.PointTransaction `json:"transactions"`
	Page         int                       `json:"page"`
	Size         int                       `json:"size"`
	TotalItems   int64                     `json:"total_items"`
	TotalPages   int                       `json:"total_pages"`
}

type PointsService struct {
	DB  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewPointsService(db *gorm.DB, logger *zap.Logger) *PointsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointsService{DB: db, log: logger.Named("points"), now: time.Now}
}

func (s *PointsService) db(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.DB == nil {
		return nil, ErrNotConfigured
	}
	return s.DB.WithContext(ctx), nil
}

// profileKey normalizes a witness profile id the same way on every read and
// write path.
func profileKey(id string) string {
	return strings.TrimSpace(id)
}

// counterDelta returns the summary increments a single award of action adds.
func counterDelta(action models.ActionType, points int64) models.UserPointsSummary {
	d := models.UserPointsSummary{TotalPoints: points}
	if action.IsTestimony() {
		d.TestimoniesCount = 1
	}
	switch action {
	case models.ActionTestimonySeen:
		d.TestimoniesSeenCount = 1
	case models.ActionTestimonyHeard:
		d.TestimoniesHeardCount = 1
	case models.ActionTestimonyExperienced:
		d.TestimoniesExperiencedCount = 1
	case models.ActionSoulAdded:
		d.SoulsCount = 1
	case models.ActionShare:
		d.SharesCount = 1
	}
	return d
}

// AwardPoints records an award in the ledger and folds it into the profile's
// summary. Both writes share one transaction and the summary is bumped with a
// single upsert, so concurrent awards for the same profile cannot lose updates.
// Profile existence is not checked; an award for an unknown id creates an
// orphaned summary row.
func (s *PointsService) AwardPoints(ctx context.Context, witnessProfileID string, action models.ActionType, description string) (AwardResult, error) {
	db, err := s.db(ctx)
	if err != nil {
		return AwardResult{}, err
	}
	witnessProfileID = profileKey(witnessProfileID)
	if witnessProfileID == "" {
		return AwardResult{}, invalid("witness profile id is required")
	}

	points := PointsFor(action)
	delta := counterDelta(action, points)
	delta.WitnessProfileID = witnessProfileID

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := upsertSummary(tx, &delta, s.now()).Error; err != nil {
			return err
		}

		entry := models.PointTransaction{
			WitnessProfileID: witnessProfileID,
			ActionType:       action,
			Points:           points,
			Description:      description,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		awardFailures.Inc()
		s.log.Error("award failed",
			zap.String("witness_profile_id", witnessProfileID),
			zap.String("action_type", string(action)),
			zap.Error(err))
		return AwardResult{}, opFailed("award points", err)
	}

	label := metricLabel(action)
	awardsRecorded.WithLabelValues(label).Inc()
	pointsAwarded.WithLabelValues(label).Add(float64(points))
	if _, known := ActionPoints[action]; !known {
		s.log.Warn("unknown action type awarded zero points",
			zap.String("witness_profile_id", witnessProfileID),
			zap.String("action_type", string(action)))
	}
	s.log.Info("points awarded",
		zap.String("witness_profile_id", witnessProfileID),
		zap.String("action_type", string(action)),
		zap.Int64("points", points))

	return AwardResult{Success: true, Points: points}, nil
}

// upsertSummary inserts the summary row or adds delta to the existing one in a
// single statement.
func upsertSummary(tx *gorm.DB, delta *models.UserPointsSummary, now time.Time) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "witness_profile_id"}},
		DoUpdates: clause.Assignments(incrementAssignments(*delta, now)),
	}).Create(delta)
}

func incrementAssignments(d models.UserPointsSummary, now time.Time) map[string]interface{} {
	inc := func(col string, by int64) clause.Expr {
		return gorm.Expr("user_points_summaries."+col+" + ?", by)
	}
	return map[string]interface{}{
		"total_points":                  inc("total_points", d.TotalPoints),
		"testimonies_count":             inc("testimonies_count", d.TestimoniesCount),
		"testimonies_seen_count":        inc("testimonies_seen_count", d.TestimoniesSeenCount),
		"testimonies_heard_count":       inc("testimonies_heard_count", d.TestimoniesHeardCount),
		"testimonies_experienced_count": inc("testimonies_experienced_count", d.TestimoniesExperiencedCount),
		"souls_count":                   inc("souls_count", d.SoulsCount),
		"shares_count":                  inc("shares_count", d.SharesCount),
		"updated_at":                    now,
	}
}

func metricLabel(action models.ActionType) string {
	if _, ok := ActionPoints[action]; ok {
		return string(action)
	}
	return "unknown"
}

// GetLeaderboard returns the top summaries by total points. limit <= 0 means
// DefaultLeaderboardLimit; larger limits are clamped to MaxLeaderboardLimit.
func (s *PointsService) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	entries := []LeaderboardEntry{}
	err = db.Table("user_points_summaries AS s").
		Select(`s.witness_profile_id, s.total_points, s.testimonies_count,
			s.testimonies_seen_count, s.testimonies_heard_count, s.testimonies_experienced_count,
			s.souls_count, s.shares_count,
			COALESCE(p.name, '') AS name, COALESCE(p.role, '') AS role, p.photo_uri`).
		Joins("LEFT JOIN witness_profiles p ON p.id = s.witness_profile_id AND p.deleted_at IS NULL").
		Order("s.total_points DESC, s.witness_profile_id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, opFailed("get leaderboard", err)
	}
	return entries, nil
}

// GetUserStats returns the profile's summary, or a zero-valued record when the
// profile has never been awarded anything.
func (s *PointsService) GetUserStats(ctx context.Context, witnessProfileID string) (models.UserPointsSummary, error) {
	db, err := s.db(ctx)
	if err != nil {
		return models.UserPointsSummary{}, err
	}
	witnessProfileID = profileKey(witnessProfileID)
	var summary models.UserPointsSummary
	err = db.Where("witness_profile_id = ?", witnessProfileID).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UserPointsSummary{WitnessProfileID: witnessProfileID}, nil
	}
	if err != nil {
		return models.UserPointsSummary{}, opFailed("get user stats", err)
	}
	return summary, nil
}

// GetUserRank returns the 1-based leaderboard position of a profile.
// Profiles tied on points share a rank.
func (s *PointsService) GetUserRank(ctx context.Context, witnessProfileID string) (int64, error) {
	stats, err := s.GetUserStats(ctx, witnessProfileID)
	if err != nil {
		return 0, err
	}
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var ahead int64
	if err := db.Model(&models.UserPointsSummary{}).
		Where("total_points > ?", stats.TotalPoints).
		Count(&ahead).Error; err != nil {
		return 0, opFailed("get user rank", err)
	}
	return ahead + 1, nil
}

// ListTransactions returns a profile's ledger entries, newest first.
func (s *PointsService) ListTransactions(ctx context.Context, witnessProfileID string, page, size int) (*TransactionPage, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	witnessProfileID = profileKey(witnessProfileID)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := db.Model(&models.PointTransaction{}).
		Where("witness_profile_id = ?", witnessProfileID).
		Count(&total).Error; err != nil {
		return nil, opFailed("count transactions", err)
	}

	txs := []models.PointTransaction{}
	if err := db.Where("witness_profile_id = ?", witnessProfileID).
		Order("created_at DESC, id DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&txs).Error; err != nil {
		return nil, opFailed("list transactions", err)
	}

	return &TransactionPage{
		Transactions: txs,
		Page:         page,
		Size:         size,
		TotalItems:   total,
		TotalPages:   int((total + int64(size) - 1) / int64(size)),
	}, nil
}

type ledgerAggregate struct {
	ActionType models.ActionType
	Entries    int64
	Points     int64
}

// Reconcile rebuilds a profile's summary from its ledger entries. The summary
// row is locked for the duration, so awards landing meanwhile wait for it.
func (s *PointsService) Reconcile(ctx context.Context, witnessProfileID string) (*ReconcileResult, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	witnessProfileID = profileKey(witnessProfileID)
	if witnessProfileID == "" {
		return nil, invalid("witness profile id is required")
	}

	result := &ReconcileResult{WitnessProfileID: witnessProfileID}
	err = db.Transaction(func(tx *gorm.DB) error {
		var current models.UserPointsSummary
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("witness_profile_id = ?", witnessProfileID).
			First(&current).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var aggs []ledgerAggregate
		if err := tx.Model(&models.PointTransaction{}).
			Select("action_type, COUNT(*) AS entries, COALESCE(SUM(points), 0) AS points").
			Where("witness_profile_id = ?", witnessProfileID).
			Group("action_type").
			Scan(&aggs).Error; err != nil {
			return err
		}

		rebuilt := models.UserPointsSummary{WitnessProfileID: witnessProfileID}
		for _, a := range aggs {
			d := counterDelta(a.ActionType, a.Points)
			rebuilt.TotalPoints += a.Points
			rebuilt.TestimoniesCount += d.TestimoniesCount * a.Entries
			rebuilt.TestimoniesSeenCount += d.TestimoniesSeenCount * a.Entries
			rebuilt.TestimoniesHeardCount += d.TestimoniesHeardCount * a.Entries
			rebuilt.TestimoniesExperiencedCount += d.TestimoniesExperiencedCount * a.Entries
			rebuilt.SoulsCount += d.SoulsCount * a.Entries
			rebuilt.SharesCount += d.SharesCount * a.Entries
		}

		result.Before = current
		if !exists {
			result.Before = models.UserPointsSummary{WitnessProfileID: witnessProfileID}
		}
		result.After = rebuilt

		if exists && current.SameCounters(rebuilt) {
			result.After = current
			return nil
		}
		// No ledger rows and no summary: nothing to create.
		if !exists && len(aggs) == 0 {
			return nil
		}
		if exists {
			rebuilt.ID = current.ID
			rebuilt.CreatedAt = current.CreatedAt
			if err := tx.Model(&models.UserPointsSummary{}).
				Where("id = ?", current.ID).
				Updates(map[string]interface{}{
					"total_points":                  rebuilt.TotalPoints,
					"testimonies_count":             rebuilt.TestimoniesCount,
					"testimonies_seen_count":        rebuilt.TestimoniesSeenCount,
					"testimonies_heard_count":       rebuilt.TestimoniesHeardCount,
					"testimonies_experienced_count": rebuilt.TestimoniesExperiencedCount,
					"souls_count":                   rebuilt.SoulsCount,
					"shares_count":                  rebuilt.SharesCount,
					"updated_at":                    s.now(),
				}).Error; err != nil {
				return err
			}
		} else {
			// A first award may have created the row after the lock read found
			// nothing. Leave that row alone; the next pass checks it.
			created := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "witness_profile_id"}},
				DoNothing: true,
			}).Create(&rebuilt)
			if created.Error != nil {
				return created.Error
			}
			if created.RowsAffected == 0 {
				result.After = result.Before
				return nil
			}
		}
		result.Drifted = true
		result.After = rebuilt
		return nil
	})
	if err != nil {
		return nil, opFailed("reconcile", err)
	}

	if result.Drifted {
		summariesRepaired.Inc()
		s.log.Warn("summary drifted from ledger, repaired",
			zap.String("witness_profile_id", witnessProfileID),
			zap.Int64("total_before", result.Before.TotalPoints),
			zap.Int64("total_after", result.After.TotalPoints))
	}
	return result, nil
}

// ReconcileAll reconciles every profile that has either ledger entries or a
// summary row.
func (s *PointsService) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	db, err := s.db(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	var ledgerIDs, summaryIDs []string
	if err := db.Model(&models.PointTransaction{}).Distinct().Pluck("witness_profile_id", &ledgerIDs).Error; err != nil {
		return ReconcileReport{}, opFailed("list ledger profiles", err)
	}
	if err := db.Model(&models.UserPointsSummary{}).Pluck("witness_profile_id", &summaryIDs).Error; err != nil {
		return ReconcileReport{}, opFailed("list summary profiles", err)
	}

	seen := make(map[string]struct{}, len(ledgerIDs)+len(summaryIDs))
	var report ReconcileReport
	for _, id := range append(ledgerIDs, summaryIDs...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res, err := s.Reconcile(ctx, id)
		report.Checked++
		if err != nil {
			report.Failed++
			s.log.Error("reconcile failed",
				zap.String("witness_profile_id", id),
				zap.Error(err))
			continue
		}
		if res.Drifted {
			report.Repaired++
		}
	}
	s.log.Info("reconcile finished",
		zap.Int("checked", report.Checked),
		zap.Int("repaired", report.Repaired),
		zap.Int("failed", report.Failed))
	return report, nil
}
