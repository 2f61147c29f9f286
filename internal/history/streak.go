package history

import (
	"context"
	"sort"
	"time"

	"reconciliation-engine/internal/models"
)

// Streak thresholds, in days
const (
	streakGapDays    = 62
	streakActiveDays = 30
	streakAtRiskDays = 45
)

// Milestones are consecutive-month counts worth celebrating
var Milestones = []int{3, 6, 12, 24}

// GetReconciliationStreak recomputes the account's monthly streak from its
// completed records.
func (s *Service) GetReconciliationStreak(ctx context.Context, companyID, accountID string) (*models.ReconciliationStreak, error) {
	records, err := s.listRecords(ctx, companyID, accountID)
	if err != nil {
		return nil, err
	}

	var dates []time.Time
	for _, r := range records {
		if r.Status == models.StatusCompleted && r.CompletedAt != nil {
			dates = append(dates, *r.CompletedAt)
		}
	}
	return ComputeStreak(dates, s.now()), nil
}

// ComputeStreak walks completion dates oldest first. A second completion in
// the same calendar month does not extend the streak, and a gap of more than
// two months starts a new one.
func ComputeStreak(completions []time.Time, now time.Time) *models.ReconciliationStreak {
	streak := &models.ReconciliationStreak{
		StreakStatus:       models.StreakBroken,
		MilestonesAchieved: []models.Milestone{},
	}
	if len(completions) == 0 {
		return streak
	}

	dates := append([]time.Time(nil), completions...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	run := 0
	var prev time.Time
	reached := make(map[int]bool)
	for i, d := range dates {
		switch {
		case i == 0:
			run = 1
		case sameMonth(prev, d):
		case models.DaysBetween(prev, d) <= streakGapDays:
			run++
		default:
			run = 1
		}
		prev = d

		if run > streak.BestStreak {
			streak.BestStreak = run
		}
		for _, m := range Milestones {
			if run >= m && !reached[m] {
				reached[m] = true
				streak.MilestonesAchieved = append(streak.MilestonesAchieved, models.Milestone{Milestone: m, AchievedAt: d})
			}
		}
	}

	last := dates[len(dates)-1]
	next := last.AddDate(0, 1, 0)
	streak.LastReconciliationDate = &last
	streak.NextDueDate = &next

	since := 0
	if now.After(last) {
		since = models.DaysBetween(last, now)
	}
	switch {
	case since <= streakActiveDays:
		streak.StreakStatus = models.StreakActive
		streak.CurrentStreak = run
	case since <= streakAtRiskDays:
		streak.StreakStatus = models.StreakAtRisk
		streak.CurrentStreak = run
	default:
		streak.StreakStatus = models.StreakBroken
	}
	return streak
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}
