package telegraph

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

// digestCronParser accepts the standard 5-field cron expressions
// (minute, hour, dom, month, dow) used for digest schedules in config.
var digestCronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration returns the time until the digest schedule next fires.
// Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := digestCronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Digester pushes progress digests to the configured senders on a cron
// schedule until its context is cancelled.
type Digester struct {
	Scenario string
	CronExpr string // 5-field cron; empty disables the periodic loop
	Graph    *graph.Graph
	Tracker  *progress.Tracker
	Senders  []Sender
}

// Run blocks, sending a digest at each cron fire time, until ctx is
// cancelled. Send failures are logged, never fatal.
func (d *Digester) Run(ctx context.Context) {
	if d.CronExpr == "" || len(d.Senders) == 0 {
		return
	}
	for {
		wait := nextCronDuration(d.CronExpr)
		if wait <= 0 {
			log.Printf("telegraph: invalid digest cron %q — digests disabled", d.CronExpr)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		d.Broadcast(FormatProgress(d.Scenario, d.Graph.Snapshot(), d.Tracker.Snapshot()))
	}
}

// Broadcast sends one digest to every sender. Best-effort: errors are
// logged, not returned.
func (d *Digester) Broadcast(digest Digest) {
	for _, s := range d.Senders {
		if err := s.Send(digest); err != nil {
			log.Printf("telegraph: send digest: %v", err)
		}
	}
}

// CloseAll closes every sender.
func (d *Digester) CloseAll() {
	for _, s := range d.Senders {
		if err := s.Close(); err != nil {
			log.Printf("telegraph: close sender: %v", err)
		}
	}
}
