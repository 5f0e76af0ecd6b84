package reporting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func daysAgo(days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

func TestByWindow(t *testing.T) {
	requests := []domain.Request{
		{ID: "today", CreatedAt: now},
		{ID: "6-days", CreatedAt: daysAgo(6)},
		{ID: "7-days", CreatedAt: daysAgo(7)},
		{ID: "20-days", CreatedAt: daysAgo(20)},
		{ID: "200-days", CreatedAt: daysAgo(200)},
		{ID: "400-days", CreatedAt: daysAgo(400)},
	}

	ids := func(filtered []domain.Request) []string {
		out := make([]string, 0, len(filtered))
		for _, request := range filtered {
			out = append(out, request.ID)
		}
		return out
	}

	// the cutoff itself is inside the window
	assert.Equal(t, []string{"today", "6-days", "7-days"}, ids(ByWindow(requests, WindowLastWeek, now)))
	assert.Equal(t, []string{"today", "6-days", "7-days", "20-days"}, ids(ByWindow(requests, WindowLastMonth, now)))
	assert.Equal(t, []string{"today", "6-days", "7-days", "20-days", "200-days"}, ids(ByWindow(requests, WindowLastYear, now)))
	assert.Len(t, ByWindow(requests, WindowAllTime, now), len(requests))
}

func TestValidWindow(t *testing.T) {
	assert.True(t, ValidWindow(WindowLastWeek))
	assert.True(t, ValidWindow(WindowAllTime))
	assert.False(t, ValidWindow("LAST_DECADE"))
	assert.False(t, ValidWindow(""))
}

func TestExcludingEscalated(t *testing.T) {
	requests := []domain.Request{
		{ID: "a", Status: domain.RequestStatusPending},
		{ID: "b", Status: domain.RequestStatusEscalated},
		{ID: "c", Status: domain.RequestStatusCompleted},
	}
	filtered := ExcludingEscalated(requests)
	assert.Len(t, filtered, 2)
	for _, request := range filtered {
		assert.NotEqual(t, domain.RequestStatusEscalated, request.Status)
	}
}

func TestCountsByKey(t *testing.T) {
	requests := []domain.Request{
		{Location: "Dorm A", Category: "plumbing"},
		{Location: "Dorm B", Category: "electrical"},
		{Location: "Dorm B", Category: "plumbing"},
		{Location: "Dorm C", Category: "plumbing"},
		{Location: "Dorm B", Category: "hvac"},
	}

	byLocation := CountsByKey(requests, func(r *domain.Request) string { return r.Location })
	assert.Equal(t, []KeyCount{
		{Key: "Dorm B", Count: 3},
		{Key: "Dorm A", Count: 1},
		{Key: "Dorm C", Count: 1},
	}, byLocation)

	byCategory := CountsByKey(requests, func(r *domain.Request) string { return r.Category })
	assert.Equal(t, []KeyCount{
		{Key: "plumbing", Count: 3},
		{Key: "electrical", Count: 1},
		{Key: "hvac", Count: 1},
	}, byCategory)

	assert.Empty(t, CountsByKey(nil, func(r *domain.Request) string { return r.Location }))
}

func TestForTechnician(t *testing.T) {
	tid := "tech-1"
	other := "tech-2"
	done2 := daysAgo(8)
	done4 := daysAgo(2)

	requests := []domain.Request{
		// completed in 2 days
		{ID: "c1", Status: domain.RequestStatusCompleted, TechnicianID: &tid, CreatedAt: daysAgo(10), CompletedAt: &done2},
		// completed in 4 days
		{ID: "c2", Status: domain.RequestStatusCompleted, TechnicianID: &tid, CreatedAt: daysAgo(6), CompletedAt: &done4},
		{ID: "open", Status: domain.RequestStatusActive, TechnicianID: &tid, CreatedAt: daysAgo(1)},
		{ID: "theirs", Status: domain.RequestStatusCompleted, TechnicianID: &other, CreatedAt: daysAgo(3)},
		{ID: "unassigned", Status: domain.RequestStatusPending, CreatedAt: daysAgo(1)},
	}

	metrics := ForTechnician(requests, tid, now)
	assert.Equal(t, 2, metrics.TotalJobsCompleted)
	assert.Equal(t, 1, metrics.PendingJobs)
	assert.Equal(t, 3, metrics.AverageCompletionDays)
}

func TestForTechnicianNoCompletedJobs(t *testing.T) {
	tid := "tech-1"
	requests := []domain.Request{
		{ID: "open", Status: domain.RequestStatusActive, TechnicianID: &tid, CreatedAt: daysAgo(1)},
	}
	metrics := ForTechnician(requests, tid, now)
	assert.Equal(t, 0, metrics.TotalJobsCompleted)
	assert.Equal(t, 1, metrics.PendingJobs)
	assert.Equal(t, 0, metrics.AverageCompletionDays)
}

func TestForTechnicianMissingCompletionDate(t *testing.T) {
	tid := "tech-1"
	// completion date unconfirmed; "now" stands in
	requests := []domain.Request{
		{ID: "c", Status: domain.RequestStatusCompleted, TechnicianID: &tid, CreatedAt: daysAgo(5)},
	}
	metrics := ForTechnician(requests, tid, now)
	assert.Equal(t, 1, metrics.TotalJobsCompleted)
	assert.Equal(t, 5, metrics.AverageCompletionDays)
}

func TestDashboard(t *testing.T) {
	tid := "tech-1"
	done := daysAgo(1)
	requests := []domain.Request{
		{ID: "p1", Status: domain.RequestStatusPending, CreatedAt: daysAgo(2)},
		{ID: "p2", Status: domain.RequestStatusPending, CreatedAt: daysAgo(1)},
		{ID: "a1", Status: domain.RequestStatusActive, TechnicianID: &tid, CreatedAt: daysAgo(1)},
		{ID: "c1", Status: domain.RequestStatusCompleted, TechnicianID: &tid, CreatedAt: daysAgo(3), CompletedAt: &done},
		{ID: "e1", Status: domain.RequestStatusEscalated, CreatedAt: daysAgo(7)},
		{ID: "x1", Status: domain.RequestStatusCancelled, CreatedAt: daysAgo(4)},
	}

	counters := Dashboard(requests, now)
	assert.Equal(t, 6, counters.Total)
	assert.Equal(t, 1, counters.Completed)
	assert.Equal(t, 2, counters.Pending)
	assert.Equal(t, 1, counters.Escalated)
	assert.Equal(t, 2, counters.AverageCompletionDays)
}

func TestDashboardEmpty(t *testing.T) {
	counters := Dashboard(nil, now)
	assert.Equal(t, DashboardCounters{}, counters)
}
