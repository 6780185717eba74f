package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/hamed0406/linkmonitor/internal/domain"
	"github.com/hamed0406/linkmonitor/internal/stability"
)

const usage = `usage: linkmonitor-cli <command> [flags] [target]

commands:
  targets              list monitored targets
  status [target]      current state of one or all targets
  sessions <target>    connection sessions, newest first
  events <target>      connect/disconnect events, newest first
  stats <target>       session statistics (-days)
  stability <target>   stability rating (-hours or -days)

env: API_BASE (default http://localhost:8080), API_KEY`

func main() {
	base := os.Getenv("API_BASE")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := newClient(base, os.Getenv("API_KEY"))
	if err := run(context.Background(), c, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client, args []string, w io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	days := fs.Int("days", 0, "window in days")
	hours := fs.Int("hours", 0, "window in hours")
	page := fs.Int("page", 1, "page")
	perPage := fs.Int("n", 20, "rows per page")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%s: %w\n\n%s", cmd, err, usage)
	}
	target := fs.Arg(0)

	q := url.Values{}
	if *days > 0 {
		q.Set("days", strconv.Itoa(*days))
	}
	if *hours > 0 {
		q.Set("hours", strconv.Itoa(*hours))
	}
	pq := url.Values{"page": {strconv.Itoa(*page)}, "per_page": {strconv.Itoa(*perPage)}}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch cmd {
	case "targets":
		var ts []domain.Target
		if err := c.get(ctx, "/api/targets", nil, &ts); err != nil {
			return err
		}
		fmt.Fprintln(tw, "NAME\tFIRST SEEN\tDESCRIPTION")
		for _, t := range ts {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, timeOrDash(t.FirstSeen), t.Description)
		}
	case "status":
		var sts []domain.TargetStatus
		if target == "" {
			if err := c.get(ctx, "/api/status", nil, &sts); err != nil {
				return err
			}
		} else {
			var st domain.TargetStatus
			if err := c.get(ctx, targetPath(target, "status"), nil, &st); err != nil {
				return err
			}
			sts = append(sts, st)
		}
		fmt.Fprintln(tw, "TARGET\tSTATE\tFOR\tUPTIME\tDOWNTIME\tLAST CHECK")
		for _, st := range sts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				st.Target, stateName(st), stability.FormatDuration(st.ConsecutiveStatusDuration),
				stability.FormatDuration(st.TotalUptime), stability.FormatDuration(st.TotalDowntime),
				timeOrDash(&st.LastCheck))
		}
	case "sessions":
		if target == "" {
			return errors.New("sessions: target required")
		}
		var ss []domain.ConnectionSession
		if err := c.get(ctx, targetPath(target, "sessions"), pq, &ss); err != nil {
			return err
		}
		fmt.Fprintln(tw, "START\tEND\tDURATION\tSTATUS")
		for _, s := range ss {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", timeOrDash(&s.StartTime), timeOrDash(s.EndTime),
				stability.FormatDuration(s.DurationAt(time.Now())), s.Status)
		}
	case "events":
		if target == "" {
			return errors.New("events: target required")
		}
		var es []domain.ConnectionEvent
		if err := c.get(ctx, targetPath(target, "events"), pq, &es); err != nil {
			return err
		}
		fmt.Fprintln(tw, "TIME\tEVENT\tSESSION")
		for _, e := range es {
			dur := "-"
			if e.SessionDuration != nil {
				dur = stability.FormatDuration(*e.SessionDuration)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", timeOrDash(&e.Timestamp), e.Type, dur)
		}
	case "stats":
		if target == "" {
			return errors.New("stats: target required")
		}
		var st domain.ConnectionStats
		if err := c.get(ctx, targetPath(target, "stats"), q, &st); err != nil {
			return err
		}
		fmt.Fprintf(tw, "target\t%s\n", st.Target)
		fmt.Fprintf(tw, "uptime\t%.2f%%\n", st.UptimePercentage)
		fmt.Fprintf(tw, "sessions\t%d\n", st.TotalSessions)
		fmt.Fprintf(tw, "disconnections\t%d\n", st.DisconnectionCount)
		fmt.Fprintf(tw, "average session\t%s\n", stability.FormatDuration(st.AverageSessionDuration))
		fmt.Fprintf(tw, "longest session\t%s\n", stability.FormatDuration(st.LongestSession))
		if st.CurrentSession != nil {
			fmt.Fprintf(tw, "current session\t%s\n", stability.FormatDuration(st.CurrentSession.Duration))
		}
	case "stability":
		if target == "" {
			return errors.New("stability: target required")
		}
		var r domain.StabilityReport
		if err := c.get(ctx, targetPath(target, "stability"), q, &r); err != nil {
			return err
		}
		fmt.Fprintf(tw, "target\t%s\n", r.Target)
		fmt.Fprintf(tw, "rating\t%d/100 (%s)\n", r.Snapshot.StabilityRating, r.Category)
		fmt.Fprintf(tw, "uptime\t%.2f%%\n", r.Snapshot.UptimePercentage)
		fmt.Fprintf(tw, "disconnections 24h\t%d\n", r.Snapshot.DisconnectionCount24h)
		fmt.Fprintf(tw, "reason\t%s\n", r.Reason)
		for _, rec := range r.Recommendations {
			fmt.Fprintf(tw, "recommendation\t%s\n", rec)
		}
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
	return nil
}

func stateName(st domain.TargetStatus) string {
	switch {
	case !st.Probed():
		return "never probed"
	case st.IsConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

func timeOrDash(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
