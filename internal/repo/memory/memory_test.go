package memory

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/repo/repotest"
)

func TestMemoryStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T, clk *clock.Mock) repotest.Harness {
		s := New(WithClock(clk), WithLogger(zaptest.NewLogger(t)))
		return repotest.Harness{
			Store: s,
			Alert: s,
			Clock: clk,
			InjectActive: func(t *testing.T, target string, start time.Time) {
				s.InjectSession(target, domain.ConnectionSession{StartTime: start, Status: domain.SessionActive})
			},
		}
	})
}

func TestListSessions_SameStartNewestIDFirst(t *testing.T) {
	s := New()
	at := time.Date(2025, 8, 18, 9, 0, 0, 0, time.UTC)
	end := at.Add(time.Minute)
	first := s.InjectSession("vpn", domain.ConnectionSession{StartTime: at, EndTime: &end, Status: domain.SessionEnded})
	second := s.InjectSession("vpn", domain.ConnectionSession{StartTime: at, Status: domain.SessionActive})

	got, err := s.ListSessions(context.Background(), "vpn", domain.Page{}.Normalize())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("order = %+v, want ids %d then %d", got, second.ID, first.ID)
	}
}
