// Package stability scores link stability from persisted connection history.
// Everything here is pure: no clocks, no storage.
package stability

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hamed0406/linkmonitor/internal/domain"
)

const (
	CategoryExcellent = "excellent"
	CategoryGood      = "good"
	CategoryFair      = "fair"
	CategoryPoor      = "poor"
	CategoryCritical  = "critical"
)

const (
	RecommendCheckNetwork     = "check network configuration"
	RecommendInvestigateDrops = "investigate frequent disconnections"
	RecommendAlternateRouting = "consider alternate routing"
)

var reasons = map[string]string{
	CategoryExcellent: "Consistent uptime with minimal disconnections",
	CategoryGood:      "Generally stable with occasional disconnections",
	CategoryFair:      "Somewhat stable but with periodic disconnections",
	CategoryPoor:      "Frequent disconnections affecting service quality",
	CategoryCritical:  "Severe connection issues affecting service usability",
}

// Assessment is the qualitative reading of a rating.
type Assessment struct {
	Rating          int      `json:"rating"`
	Category        string   `json:"stability"`
	Reason          string   `json:"reason"`
	Recommendations []string `json:"recommendations"`
}

// Rating blends uptime and recent disconnection frequency into 0..100.
// Each penalty is capped at 50 points independently.
func Rating(uptimePercentage float64, disconnections24h int) int {
	uptime := clamp(uptimePercentage, 0, 100)
	rating := 100.0
	rating -= math.Min(float64(disconnections24h)*10, 50)
	rating -= math.Min((100-uptime)*2, 50)
	return int(math.Round(clamp(rating, 0, 100)))
}

// Category maps a rating onto its bucket.
func Category(rating int) string {
	switch {
	case rating >= 99:
		return CategoryExcellent
	case rating >= 95:
		return CategoryGood
	case rating >= 80:
		return CategoryFair
	case rating >= 50:
		return CategoryPoor
	default:
		return CategoryCritical
	}
}

// Reason returns the fixed explanation of a category.
func Reason(category string) string { return reasons[category] }

// Recommendations lists operator actions for a rating.
func Recommendations(rating, disconnections24h int) []string {
	out := []string{}
	if rating < 80 {
		out = append(out, RecommendCheckNetwork)
	}
	if disconnections24h > 5 {
		out = append(out, RecommendInvestigateDrops)
	}
	if rating < 50 {
		out = append(out, RecommendAlternateRouting)
	}
	return out
}

// Assess computes rating, category, reason and recommendations together.
func Assess(uptimePercentage float64, disconnections24h int) Assessment {
	r := Rating(uptimePercentage, disconnections24h)
	c := Category(r)
	return Assessment{
		Rating:          r,
		Category:        c,
		Reason:          Reason(c),
		Recommendations: Recommendations(r, disconnections24h),
	}
}

// UptimePercentage returns the share of the window [now-window, now] during
// which the target had an open session. Time before firstSeen is not counted
// as monitored. The active session, if any, is measured live.
func UptimePercentage(sessions []domain.ConnectionSession, firstSeen *time.Time, now time.Time, window time.Duration) float64 {
	if firstSeen == nil || window <= 0 {
		return 0
	}
	start := now.Add(-window)
	if firstSeen.After(start) {
		start = *firstSeen
	}
	monitored := now.Sub(start)
	if monitored <= 0 {
		return 0
	}

	var connected time.Duration
	for _, s := range sessions {
		connected += overlap(s, start, now)
	}
	return clamp(float64(connected)/float64(monitored)*100, 0, 100)
}

// overlap returns how much of session s lies within [from, to].
func overlap(s domain.ConnectionSession, from, to time.Time) time.Duration {
	sStart := s.StartTime
	sEnd := to
	if s.Status == domain.SessionEnded {
		switch {
		case s.EndTime != nil:
			sEnd = *s.EndTime
		case s.Duration != nil:
			sEnd = sStart.Add(time.Duration(*s.Duration * float64(time.Second)))
		}
	}
	if sStart.Before(from) {
		sStart = from
	}
	if sEnd.After(to) {
		sEnd = to
	}
	if !sEnd.After(sStart) {
		return 0
	}
	return sEnd.Sub(sStart)
}

// FormatDuration renders seconds as "3d 12h 5m 10s", omitting zero units.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		return "unknown"
	}
	total := int64(seconds)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	secs := total % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
