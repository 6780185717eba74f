package stability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hamed0406/linkmonitor/internal/domain"
)

func TestAssess_PerfectLink(t *testing.T) {
	a := Assess(100, 0)
	assert.Equal(t, 100, a.Rating)
	assert.Equal(t, CategoryExcellent, a.Category)
	assert.Equal(t, "Consistent uptime with minimal disconnections", a.Reason)
	assert.Empty(t, a.Recommendations)
}

func TestAssess_BothPenaltiesCapped(t *testing.T) {
	a := Assess(70, 6)
	assert.Equal(t, 0, a.Rating)
	assert.Equal(t, CategoryCritical, a.Category)
	assert.Equal(t, []string{
		RecommendCheckNetwork,
		RecommendInvestigateDrops,
		RecommendAlternateRouting,
	}, a.Recommendations)
}

func TestRating_Table(t *testing.T) {
	cases := []struct {
		uptime float64
		drops  int
		want   int
	}{
		{100, 0, 100},
		{99.5, 0, 99},
		{100, 1, 90},
		{97.5, 0, 95},
		{100, 5, 50},
		{100, 9, 50},
		{0, 0, 50},
		{150, 0, 100},
		{-20, 10, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Rating(c.uptime, c.drops), "uptime=%v drops=%d", c.uptime, c.drops)
	}
}

func TestCategory_Thresholds(t *testing.T) {
	assert.Equal(t, CategoryExcellent, Category(99))
	assert.Equal(t, CategoryGood, Category(98))
	assert.Equal(t, CategoryGood, Category(95))
	assert.Equal(t, CategoryFair, Category(94))
	assert.Equal(t, CategoryFair, Category(80))
	assert.Equal(t, CategoryPoor, Category(79))
	assert.Equal(t, CategoryPoor, Category(50))
	assert.Equal(t, CategoryCritical, Category(49))
	for _, c := range []string{CategoryExcellent, CategoryGood, CategoryFair, CategoryPoor, CategoryCritical} {
		assert.NotEmpty(t, Reason(c))
	}
}

func TestRecommendations_Independent(t *testing.T) {
	assert.Equal(t, []string{RecommendCheckNetwork}, Recommendations(79, 0))
	assert.Equal(t, []string{RecommendInvestigateDrops}, Recommendations(90, 6))
	assert.Empty(t, Recommendations(80, 5))
}

var base = time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)

func ended(start, end time.Duration) domain.ConnectionSession {
	s := base.Add(start)
	e := base.Add(end)
	d := (end - start).Seconds()
	return domain.ConnectionSession{StartTime: s, EndTime: &e, Duration: &d, Status: domain.SessionEnded}
}

func active(start time.Duration) domain.ConnectionSession {
	return domain.ConnectionSession{StartTime: base.Add(start), Status: domain.SessionActive}
}

func TestUptimePercentage_FoldsActiveSessionLive(t *testing.T) {
	first := base
	sessions := []domain.ConnectionSession{
		ended(time.Hour, 2*time.Hour),
		active(3 * time.Hour),
	}
	now := base.Add(4 * time.Hour)

	got := UptimePercentage(sessions, &first, now, 30*24*time.Hour)
	assert.InDelta(t, 50.0, got, 1e-9)
}

func TestUptimePercentage_ClipsToWindow(t *testing.T) {
	first := base
	sessions := []domain.ConnectionSession{ended(0, 10*time.Hour)}
	now := base.Add(12 * time.Hour)

	// Window covers hours 8..12: two of four hours connected.
	got := UptimePercentage(sessions, &first, now, 4*time.Hour)
	assert.InDelta(t, 50.0, got, 1e-9)
}

func TestUptimePercentage_NeverProbed(t *testing.T) {
	assert.Equal(t, 0.0, UptimePercentage(nil, nil, base, time.Hour))
	first := base
	assert.Equal(t, 0.0, UptimePercentage(nil, &first, base, time.Hour))
}

func TestUptimePercentage_MonotoneWhileConnected(t *testing.T) {
	first := base
	window := 2 * time.Hour
	sessions := []domain.ConnectionSession{ended(10*time.Minute, 20*time.Minute), active(time.Hour)}

	prev := -1.0
	for m := 61; m < 300; m += 7 {
		got := UptimePercentage(sessions, &first, base.Add(time.Duration(m)*time.Minute), window)
		assert.GreaterOrEqual(t, got, prev-1e-9)
		assert.LessOrEqual(t, got, 100.0)
		prev = got
	}
}

func TestUptimePercentage_NonIncreasingWhileDisconnected(t *testing.T) {
	first := base
	window := 3 * time.Hour
	sessions := []domain.ConnectionSession{ended(0, time.Hour)}

	prev := 101.0
	for m := 60; m < 400; m += 11 {
		got := UptimePercentage(sessions, &first, base.Add(time.Duration(m)*time.Minute), window)
		assert.LessOrEqual(t, got, prev+1e-9)
		assert.GreaterOrEqual(t, got, 0.0)
		prev = got
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "59s", FormatDuration(59.9))
	assert.Equal(t, "1m", FormatDuration(60))
	assert.Equal(t, "3d 12h 5m 10s", FormatDuration(3*86400+12*3600+5*60+10))
	assert.Equal(t, "unknown", FormatDuration(-1))
}
