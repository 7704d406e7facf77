package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go-and-tell/models"
	"go-and-tell/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPoints(t *testing.T) (*PointsService, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewPointsService(db, nil), db
}

func ledgerFor(t *testing.T, db *gorm.DB, profileID string) []models.PointTransaction {
	t.Helper()
	var txs []models.PointTransaction
	require.NoError(t, db.Where("witness_profile_id = ?", profileID).Find(&txs).Error)
	return txs
}

func TestPointsFor(t *testing.T) {
	tests := []struct {
		action models.ActionType
		want   int64
	}{
		{models.ActionTestimonySeen, 3},
		{models.ActionTestimonyHeard, 2},
		{models.ActionTestimonyExperienced, 5},
		{models.ActionSoulAdded, 10},
		{models.ActionShare, 2},
		{"prayer", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PointsFor(tt.action), string(tt.action))
	}
}

func TestAwardPointsExampleScenario(t *testing.T) {
	svc, _ := newPoints(t)
	ctx := context.Background()

	res, err := svc.AwardPoints(ctx, "P", models.ActionTestimonySeen, "")
	require.NoError(t, err)
	assert.Equal(t, AwardResult{Success: true, Points: 3}, res)

	stats, err := svc.GetUserStats(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPoints)
	assert.Equal(t, int64(1), stats.TestimoniesCount)
	assert.Equal(t, int64(1), stats.TestimoniesSeenCount)
	assert.Zero(t, stats.TestimoniesHeardCount)
	assert.Zero(t, stats.TestimoniesExperiencedCount)
	assert.Zero(t, stats.SoulsCount)
	assert.Zero(t, stats.SharesCount)

	res, err = svc.AwardPoints(ctx, "P", models.ActionSoulAdded, "Soul added: Ama")
	require.NoError(t, err)
	assert.Equal(t, AwardResult{Success: true, Points: 10}, res)

	stats, err = svc.GetUserStats(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, int64(13), stats.TotalPoints)
	assert.Equal(t, int64(1), stats.TestimoniesCount)
	assert.Equal(t, int64(1), stats.TestimoniesSeenCount)
	assert.Equal(t, int64(1), stats.SoulsCount)
	assert.Zero(t, stats.SharesCount)
}

func TestAwardPointsFirstAwardCreatesOneSummary(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "first", models.ActionTestimonyExperienced, "healed")
	require.NoError(t, err)

	var rows []models.UserPointsSummary
	require.NoError(t, db.Where("witness_profile_id = ?", "first").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5), rows[0].TotalPoints)
	assert.Equal(t, int64(1), rows[0].TestimoniesCount)
	assert.Equal(t, int64(1), rows[0].TestimoniesExperiencedCount)
	assert.Zero(t, rows[0].TestimoniesSeenCount)
	assert.Zero(t, rows[0].SoulsCount)

	txs := ledgerFor(t, db, "first")
	require.Len(t, txs, 1)
	assert.Equal(t, "healed", txs[0].Description)
	assert.Equal(t, int64(5), txs[0].Points)
	assert.False(t, txs[0].CreatedAt.IsZero())
}

func TestAwardPointsSumAndCounterInvariants(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	actions := []models.ActionType{
		models.ActionTestimonySeen, models.ActionShare, models.ActionSoulAdded,
		models.ActionTestimonyHeard, models.ActionShare, "unknown_thing",
		models.ActionTestimonyExperienced, models.ActionSoulAdded, models.ActionTestimonySeen,
	}
	for _, a := range actions {
		_, err := svc.AwardPoints(ctx, "inv", a, "")
		require.NoError(t, err)
	}

	stats, err := svc.GetUserStats(ctx, "inv")
	require.NoError(t, err)

	var sum int64
	counts := map[models.ActionType]int64{}
	testimonies := int64(0)
	for _, tx := range ledgerFor(t, db, "inv") {
		sum += tx.Points
		counts[tx.ActionType]++
		if tx.ActionType.IsTestimony() {
			testimonies++
		}
	}

	assert.Equal(t, sum, stats.TotalPoints)
	assert.Equal(t, testimonies, stats.TestimoniesCount)
	assert.Equal(t, counts[models.ActionTestimonySeen], stats.TestimoniesSeenCount)
	assert.Equal(t, counts[models.ActionTestimonyHeard], stats.TestimoniesHeardCount)
	assert.Equal(t, counts[models.ActionTestimonyExperienced], stats.TestimoniesExperiencedCount)
	assert.Equal(t, counts[models.ActionSoulAdded], stats.SoulsCount)
	assert.Equal(t, counts[models.ActionShare], stats.SharesCount)
	assert.Equal(t, int64(3+2+10+2+2+0+5+10+3), stats.TotalPoints)
}

func TestAwardPointsUnknownActionIsRecordedWithZeroPoints(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	res, err := svc.AwardPoints(ctx, "u", "testimony_dreamed", "odd")
	require.NoError(t, err)
	assert.Equal(t, AwardResult{Success: true, Points: 0}, res)

	stats, err := svc.GetUserStats(ctx, "u")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPoints)
	assert.Equal(t, "u", stats.WitnessProfileID)

	// "testimony_" prefix still counts as a testimony, but no sub-counter moves.
	assert.Equal(t, int64(1), stats.TestimoniesCount)
	assert.Zero(t, stats.TestimoniesSeenCount+stats.TestimoniesHeardCount+stats.TestimoniesExperiencedCount)

	txs := ledgerFor(t, db, "u")
	require.Len(t, txs, 1)
	assert.Zero(t, txs[0].Points)
}

func TestAwardPointsDuplicatesAreNotDeduplicated(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.AwardPoints(ctx, "dup", models.ActionShare, "same")
		require.NoError(t, err)
	}
	stats, err := svc.GetUserStats(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalPoints)
	assert.Equal(t, int64(2), stats.SharesCount)
	assert.Len(t, ledgerFor(t, db, "dup"), 2)
}

func TestAwardPointsConcurrentSameProfile(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AwardPoints(ctx, "busy", models.ActionSoulAdded, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := svc.GetUserStats(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*10), stats.TotalPoints)
	assert.Equal(t, int64(writers), stats.SoulsCount)
	assert.Len(t, ledgerFor(t, db, "busy"), writers)

	var summaries int64
	require.NoError(t, db.Model(&models.UserPointsSummary{}).Where("witness_profile_id = ?", "busy").Count(&summaries).Error)
	assert.Equal(t, int64(1), summaries)
}

func TestAwardPointsConcurrentWritersOnPooledConnections(t *testing.T) {
	db := testutil.NewPooledDB(t, 8)
	svc := NewPointsService(db, nil)
	ctx := context.Background()

	const writers = 40
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := svc.AwardPoints(ctx, "crowd", models.ActionSoulAdded, ""); err != nil {
				errs <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := svc.GetUserStats(ctx, "crowd")
	require.NoError(t, err)
	assert.Equal(t, int64(writers*10), stats.TotalPoints)
	assert.Equal(t, int64(writers), stats.SoulsCount)
	assert.Len(t, ledgerFor(t, db, "crowd"), writers)
}

func TestSummaryUpsertIncrementsInOneStatement(t *testing.T) {
	db := testutil.NewDB(t)
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		delta := counterDelta(models.ActionSoulAdded, 10)
		delta.WitnessProfileID = "P"
		return upsertSummary(tx, &delta, time.Unix(0, 0))
	})

	assert.Contains(t, sql, "ON CONFLICT")
	assert.Contains(t, sql, "user_points_summaries.total_points + 10")
	assert.Contains(t, sql, "user_points_summaries.souls_count + 1")
	assert.Contains(t, sql, "user_points_summaries.shares_count + 0")
	assert.NotContains(t, strings.ToUpper(sql), "SELECT")
}

func TestAwardPointsConcurrentDifferentProfiles(t *testing.T) {
	svc, _ := newPoints(t)
	ctx := context.Background()

	profiles := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for _, p := range profiles {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				_, err := svc.AwardPoints(ctx, p, models.ActionTestimonySeen, "")
				assert.NoError(t, err)
			}(p)
		}
	}
	wg.Wait()

	for _, p := range profiles {
		stats, err := svc.GetUserStats(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, int64(15), stats.TotalPoints, p)
		assert.Equal(t, int64(5), stats.TestimoniesSeenCount, p)
	}
}

func TestAwardPointsLedgerFailureRollsBackSummary(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "rb", models.ActionShare, "")
	require.NoError(t, err)

	require.NoError(t, db.Migrator().DropTable(&models.PointTransaction{}))

	_, err = svc.AwardPoints(ctx, "rb", models.ActionSoulAdded, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationFailed)

	stats, err := svc.GetUserStats(ctx, "rb")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalPoints)
	assert.Zero(t, stats.SoulsCount)
}

func TestAwardPointsRejectsEmptyProfile(t *testing.T) {
	svc, _ := newPoints(t)
	_, err := svc.AwardPoints(context.Background(), "  ", models.ActionShare, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNotConfigured(t *testing.T) {
	svc := NewPointsService(nil, nil)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "p", models.ActionShare, "")
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = svc.GetLeaderboard(ctx, 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.GetUserStats(ctx, "p")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Reconcile(ctx, "p")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGetUserStatsZeroState(t *testing.T) {
	svc, _ := newPoints(t)
	stats, err := svc.GetUserStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.UserPointsSummary{WitnessProfileID: "nobody"}, stats)
}

func seedTotals(t *testing.T, db *gorm.DB, totals map[string]int64) {
	t.Helper()
	for id, total := range totals {
		require.NoError(t, db.Create(&models.UserPointsSummary{WitnessProfileID: id, TotalPoints: total}).Error)
	}
}

func TestGetLeaderboardOrdering(t *testing.T) {
	svc, db := newPoints(t)
	seedTotals(t, db, map[string]int64{"A": 10, "B": 30, "C": 20})

	board, err := svc.GetLeaderboard(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{board[0].WitnessProfileID, board[1].WitnessProfileID, board[2].WitnessProfileID})
}

func TestGetLeaderboardLimit(t *testing.T) {
	svc, db := newPoints(t)
	seedTotals(t, db, map[string]int64{"p1": 5, "p2": 50, "p3": 15, "p4": 40, "p5": 1})

	board, err := svc.GetLeaderboard(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "p2", board[0].WitnessProfileID)
	assert.Equal(t, "p4", board[1].WitnessProfileID)
}

func TestGetLeaderboardEmpty(t *testing.T) {
	svc, _ := newPoints(t)
	board, err := svc.GetLeaderboard(context.Background(), 100)
	require.NoError(t, err)
	assert.NotNil(t, board)
	assert.Empty(t, board)
}

func TestGetLeaderboardJoinsProfile(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	photo := "https://cdn.example.org/p.jpg"
	profile := models.WitnessProfile{Name: "Esi", Role: "Evangelist", PhotoURI: &photo}
	require.NoError(t, db.Create(&profile).Error)

	_, err := svc.AwardPoints(ctx, profile.ID, models.ActionSoulAdded, "")
	require.NoError(t, err)
	_, err = svc.AwardPoints(ctx, "orphan", models.ActionShare, "")
	require.NoError(t, err)

	board, err := svc.GetLeaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)

	assert.Equal(t, profile.ID, board[0].WitnessProfileID)
	assert.Equal(t, "Esi", board[0].Name)
	assert.Equal(t, "Evangelist", board[0].Role)
	require.NotNil(t, board[0].PhotoURI)
	assert.Equal(t, photo, *board[0].PhotoURI)
	assert.Equal(t, int64(1), board[0].SoulsCount)

	assert.Equal(t, "orphan", board[1].WitnessProfileID)
	assert.Empty(t, board[1].Name)
	assert.Nil(t, board[1].PhotoURI)
}

func TestGetUserRank(t *testing.T) {
	svc, db := newPoints(t)
	seedTotals(t, db, map[string]int64{"A": 10, "B": 30, "C": 20, "D": 20})
	ctx := context.Background()

	for id, want := range map[string]int64{"B": 1, "C": 2, "D": 2, "A": 4, "new": 5} {
		rank, err := svc.GetUserRank(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, rank, id)
	}
}

func TestListTransactions(t *testing.T) {
	svc, _ := newPoints(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.AwardPoints(ctx, "hist", models.ActionShare, "")
		require.NoError(t, err)
	}

	page, err := svc.ListTransactions(ctx, "hist", 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	assert.Equal(t, int64(5), page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.Transactions[0].CreatedAt.Before(page.Transactions[1].CreatedAt))

	last, err := svc.ListTransactions(ctx, "hist", 3, 2)
	require.NoError(t, err)
	assert.Len(t, last.Transactions, 1)

	defaults, err := svc.ListTransactions(ctx, "hist", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Page)
	assert.Equal(t, 20, defaults.Size)
	assert.Len(t, defaults.Transactions, 5)
}

func TestReconcileRepairsDrift(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "drift", models.ActionTestimonyHeard, "")
	require.NoError(t, err)
	_, err = svc.AwardPoints(ctx, "drift", models.ActionSoulAdded, "")
	require.NoError(t, err)

	clean, err := svc.Reconcile(ctx, "drift")
	require.NoError(t, err)
	assert.False(t, clean.Drifted)

	require.NoError(t, db.Model(&models.UserPointsSummary{}).
		Where("witness_profile_id = ?", "drift").
		Updates(map[string]interface{}{"total_points": 999, "souls_count": 7}).Error)

	res, err := svc.Reconcile(ctx, "drift")
	require.NoError(t, err)
	assert.True(t, res.Drifted)
	assert.Equal(t, int64(999), res.Before.TotalPoints)
	assert.Equal(t, int64(12), res.After.TotalPoints)

	stats, err := svc.GetUserStats(ctx, "drift")
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalPoints)
	assert.Equal(t, int64(1), stats.SoulsCount)
	assert.Equal(t, int64(1), stats.TestimoniesCount)
	assert.Equal(t, int64(1), stats.TestimoniesHeardCount)
}

func TestReconcileAllCreatesMissingSummaries(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "ok", models.ActionShare, "")
	require.NoError(t, err)
	// A ledger row written without its summary.
	require.NoError(t, db.Create(&models.PointTransaction{
		WitnessProfileID: "lost", ActionType: models.ActionTestimonySeen, Points: 3,
	}).Error)

	report, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Repaired)

	stats, err := svc.GetUserStats(ctx, "lost")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPoints)
	assert.Equal(t, int64(1), stats.TestimoniesSeenCount)
}

func TestReconcileUnknownProfileIsNoop(t *testing.T) {
	svc, db := newPoints(t)
	res, err := svc.Reconcile(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, res.Drifted)

	var n int64
	require.NoError(t, db.Model(&models.UserPointsSummary{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestProfileIDIsTrimmedOnEveryPath(t *testing.T) {
	svc, _ := newPoints(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, " P ", models.ActionSoulAdded, "")
	require.NoError(t, err)

	stats, err := svc.GetUserStats(ctx, " P")
	require.NoError(t, err)
	assert.Equal(t, "P", stats.WitnessProfileID)
	assert.Equal(t, int64(10), stats.TotalPoints)

	rank, err := svc.GetUserRank(ctx, "P ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)

	page, err := svc.ListTransactions(ctx, "  P", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalItems)

	res, err := svc.Reconcile(ctx, " P ")
	require.NoError(t, err)
	assert.Equal(t, "P", res.WitnessProfileID)
	assert.False(t, res.Drifted)
}

func TestReconcileLeavesSummaryCreatedByConcurrentAward(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "race", models.ActionSoulAdded, "")
	require.NoError(t, err)
	require.NoError(t, db.Where("witness_profile_id = ?", "race").Delete(&models.UserPointsSummary{}).Error)

	// Another award creates the row after Reconcile's locked read found nothing.
	var fired bool
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:first_award", func(tx *gorm.DB) {
		row, ok := tx.Statement.Dest.(*models.UserPointsSummary)
		if !ok || row.WitnessProfileID != "race" || fired {
			return
		}
		fired = true
		now := time.Now()
		tx.Session(&gorm.Session{NewDB: true}).Exec(`INSERT INTO user_points_summaries
			(id, witness_profile_id, total_points, testimonies_count, testimonies_seen_count,
			 testimonies_heard_count, testimonies_experienced_count, souls_count, shares_count,
			 created_at, updated_at)
			VALUES (?, ?, 20, 0, 0, 0, 0, 2, 0, ?, ?)`, "race-row", "race", now, now)
	}))

	res, err := svc.Reconcile(ctx, "race")
	require.NoError(t, err)
	require.True(t, fired)
	assert.False(t, res.Drifted)

	stats, err := svc.GetUserStats(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, int64(20), stats.TotalPoints)

	res, err = svc.Reconcile(ctx, "race")
	require.NoError(t, err)
	assert.True(t, res.Drifted)
	assert.Equal(t, int64(10), res.After.TotalPoints)
	assert.Equal(t, int64(1), res.After.SoulsCount)
}

func TestReconcileAllContinuesPastFailures(t *testing.T) {
	svc, db := newPoints(t)
	ctx := context.Background()

	for _, id := range []string{"bad", "good"} {
		require.NoError(t, db.Create(&models.PointTransaction{
			WitnessProfileID: id, ActionType: models.ActionTestimonySeen, Points: 3,
		}).Error)
	}
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_bad", func(tx *gorm.DB) {
		if row, ok := tx.Statement.Dest.(*models.UserPointsSummary); ok && row.WitnessProfileID == "bad" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	report, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 2, Repaired: 1, Failed: 1}, report)

	stats, err := svc.GetUserStats(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalPoints)

	stats, err = svc.GetUserStats(ctx, "bad")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPoints)
}
