// Package rotation runs the timed rotation of rolling proximity identifiers.
package rotation

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Policy invokes a rotation job on a schedule.
type Policy struct {
	mu       sync.Mutex
	cron     *cron.Cron
	schedule cron.Schedule
	entry    cron.EntryID
	job      func()
	logger   *logrus.Logger
	started  bool
}

// New returns a policy that runs job on schedule. A nil schedule yields a disabled
// policy whose Start is a no-op.
func New(schedule cron.Schedule, job func(), logger *logrus.Logger) *Policy {
	if logger == nil {
		logger = logrus.New()
	}
	cronLogger := cron.PrintfLogger(logger)
	return &Policy{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		schedule: schedule,
		job:      job,
		logger:   logger,
	}
}

// Every returns a schedule firing every d, or nil when d is not positive.
// Unlike cron.Every it keeps sub-second precision.
func Every(d time.Duration) cron.Schedule {
	if d <= 0 {
		return nil
	}
	return constantDelay(d)
}

// ParseSchedule accepts a standard cron expression, a descriptor such as
// "@every 10m" or "@hourly", or a plain Go duration.
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(spec); err == nil {
		return sched, nil
	}
	d, err := time.ParseDuration(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: not a cron expression or duration", spec)
	}
	if d <= 0 {
		return nil, fmt.Errorf("invalid schedule %q: duration must be positive", spec)
	}
	return Every(d), nil
}

// Enabled reports whether the policy has a schedule.
func (p *Policy) Enabled() bool {
	return p.schedule != nil
}

// Start begins running the job. Calling Start twice is a no-op.
func (p *Policy) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.schedule == nil {
		return
	}
	p.entry = p.cron.Schedule(p.schedule, cron.FuncJob(p.job))
	p.cron.Start()
	p.started = true
	p.logger.WithField("next", p.cron.Entry(p.entry).Next).Debug("Identifier rotation started")
}

// Stop halts the schedule and waits for a running job to finish.
func (p *Policy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	<-p.cron.Stop().Done()
	p.cron.Remove(p.entry)
	p.started = false
	p.logger.Debug("Identifier rotation stopped")
}

// Next returns the next scheduled rotation, or the zero time when not running.
func (p *Policy) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return time.Time{}
	}
	return p.cron.Entry(p.entry).Next
}

// constantDelay implements cron.Schedule for a fixed interval.
type constantDelay time.Duration

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}
