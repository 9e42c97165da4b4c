package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/config"
)

const DefaultFrequency = "weekly"

type schedule struct {
	pattern     string
	days        int
	description string
}

var schedules = map[string]schedule{
	"daily":      {"0 9 * * *", 1, "Every day at 9:00 AM"},
	"weekly":     {"0 9 * * 1", 7, "Every Monday at 9:00 AM"},
	"biweekly":   {"0 9 */14 * 1", 14, "Every 2 weeks on Monday at 9:00 AM"},
	"monthly":    {"0 9 1 * *", 30, "First day of each month at 9:00 AM"},
	"every3days": {"0 9 */3 * *", 3, "Every 3 days at 9:00 AM"},
	"every7days": {"0 9 */7 * *", 7, "Every 7 days at 9:00 AM"},
	"hourly":     {"0 * * * *", 1, "Every hour (testing)"},
	"every10min": {"*/10 * * * *", 1, "Every 10 minutes (testing)"},
}

type Schedule struct {
	Name        string `json:"name"`
	Pattern     string `json:"pattern"`
	Days        int    `json:"days"`
	Description string `json:"description"`
}

func AvailableSchedules() []Schedule {
	out := make([]Schedule, 0, len(schedules))
	for name, s := range schedules {
		out = append(out, Schedule{Name: name, Pattern: s.pattern, Days: s.days, Description: s.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var ErrNoRecipients = errors.New("no recipients specified for log report")

type Task struct {
	Name        string `json:"name"`
	Frequency   string `json:"frequency"`
	CronPattern string `json:"cronPattern"`
	IsRunning   bool   `json:"isRunning"`
}

type Status struct {
	Enabled     bool     `json:"enabled"`
	Frequency   string   `json:"frequency"`
	Recipients  []string `json:"recipients"`
	Days        int      `json:"days"`
	Timezone    string   `json:"timezone"`
	ActiveTasks []Task   `json:"activeTasks"`
}

type Scheduler struct {
	Config config.LogReportConfig
	Sender *Sender
	Log    *logrus.Entry

	mu    sync.Mutex
	cron  *cron.Cron
	tasks []Task
}

func (s *Scheduler) days(frequency string) int {
	if s.Config.Days > 0 {
		return s.Config.Days
	}
	return schedules[frequency].days
}

// Start registers the report job. It reports false when reporting is
// disabled, has no recipients, or the timezone is unknown.
func (s *Scheduler) Start() bool {
	if !s.Config.Enabled {
		s.Log.Info("log report scheduler is disabled")
		return false
	}
	if len(s.Config.Recipients) == 0 {
		s.Log.Warn("no recipients configured for log reports, scheduler not started")
		return false
	}
	frequency := s.Config.Frequency
	if _, ok := schedules[frequency]; !ok {
		s.Log.WithField("frequency", frequency).Error("invalid report frequency, using weekly")
		frequency = DefaultFrequency
	}
	tz := s.Config.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.Log.WithError(err).WithField("timezone", tz).Error("unknown report timezone")
		return false
	}

	pattern, days := schedules[frequency].pattern, s.days(frequency)
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(pattern, func() {
		s.Log.WithField("frequency", frequency).Info("executing scheduled log report")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Sender.SendBulk(ctx, s.Config.Recipients, days); err != nil {
			s.Log.WithError(err).Error("scheduled log report failed")
		}
	}); err != nil {
		s.Log.WithError(err).WithField("pattern", pattern).Error("invalid cron pattern")
		return false
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.tasks = append(s.tasks, Task{Name: "logReport", Frequency: frequency, CronPattern: pattern, IsRunning: true})
	s.mu.Unlock()
	s.Log.WithFields(logrus.Fields{
		"frequency":  frequency,
		"pattern":    pattern,
		"recipients": s.Config.Recipients,
		"days":       days,
	}).Info("log report scheduler started")
	return true
}

// Stop waits for a running report to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron, s.tasks = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.Log.Info("log report scheduler stopped")
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	tz := s.Config.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return Status{
		Enabled:     s.Config.Enabled,
		Frequency:   s.Config.Frequency,
		Recipients:  s.Config.Recipients,
		Days:        s.Config.Days,
		Timezone:    tz,
		ActiveTasks: append([]Task{}, s.tasks...),
	}
}

// SendNow mails a report immediately, falling back to the configured
// recipients and period.
func (s *Scheduler) SendNow(ctx context.Context, recipients []string, days int) (BulkResult, error) {
	if len(recipients) == 0 {
		recipients = s.Config.Recipients
	}
	if len(recipients) == 0 {
		return BulkResult{}, ErrNoRecipients
	}
	if days <= 0 {
		days = s.Config.Days
	}
	if days <= 0 {
		days = 7
	}
	s.Log.WithField("recipients", len(recipients)).Info("sending immediate log report")
	return s.Sender.SendBulk(ctx, recipients, days)
}
