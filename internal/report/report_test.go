package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-commerce-backend/internal/config"
	"github.com/ariefcatur/go-commerce-backend/internal/logging"
	"github.com/ariefcatur/go-commerce-backend/internal/notify"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestParse(t *testing.T) {
	in := strings.Join([]string{
		`{"level":"error","msg":"db down","time":"2026-03-10 11:00:00","error":"dial tcp"}`,
		`{"level":"warning","msg":"slow query","time":"2026-03-10 11:00:01"}`,
		`{"level":"info","msg":"ok","time":"2026-03-10 11:00:02"}`,
		`{"level":"debug","msg":"d","time":"2026-03-10 11:00:03"}`,
		`{"level":"http","message":"GET /","timestamp":"2026-03-10 11:00:04"}`,
		`{"level":"error","msg":"ancient","time":"2026-01-01 00:00:00"}`,
		`plain ERROR line`,
		`plain warn line`,
		`plain line`,
		``,
	}, "\n")

	st, err := Parse(strings.NewReader(in), fixedNow.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 8, st.Total)
	assert.Equal(t, 2, st.Error)
	assert.Equal(t, 2, st.Warn)
	assert.Equal(t, 2, st.Info)
	assert.Equal(t, 1, st.Debug)
	assert.Equal(t, 1, st.HTTP)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, Entry{Timestamp: "2026-03-10 11:00:00", Message: "db down", Stack: "dial tcp"}, st.Errors[0])
	assert.Equal(t, "slow query", st.Warnings[0].Message)
}

func TestParseCapsSamples(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, `{"level":"error","msg":"e%d"}`+"\n", i)
	}
	st, err := Parse(strings.NewReader(b.String()), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 25, st.Error)
	assert.Len(t, st.Errors, maxSamples)
}

func TestHealthStatus(t *testing.T) {
	assert.Equal(t, Healthy, HealthStatus(10))
	assert.Equal(t, Attention, HealthStatus(11))
	assert.Equal(t, Warning, HealthStatus(51))
	assert.Equal(t, Critical, HealthStatus(101))
}

func writeLogs(t *testing.T, errors, infos int) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < errors; i++ {
		b.WriteString(`{"level":"error","msg":"boom <script>","time":"2026-03-10 10:00:00"}` + "\n")
	}
	for i := 0; i < infos; i++ {
		b.WriteString(`{"level":"info","msg":"fine","time":"2026-03-10 10:00:00"}` + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, logging.CombinedFile), []byte(b.String()), 0o644))
	return dir
}

func TestGenerate(t *testing.T) {
	g := &Generator{Dir: writeLogs(t, 12, 28), Started: fixedNow.Add(-3 * time.Hour), Now: func() time.Time { return fixedNow }}

	r, err := g.Generate(7)
	require.NoError(t, err)
	assert.Equal(t, Period{From: "2026-03-03", To: "2026-03-10", Days: 7}, r.Period)
	assert.Equal(t, 40, r.Summary.TotalLogs)
	assert.Equal(t, "30.00", r.Summary.ErrorRate)
	assert.Equal(t, Attention, r.Summary.HealthStatus)
	assert.Nil(t, r.ErrorLog, "missing error.log is not an error")
	assert.Equal(t, 10800.0, r.System.UptimeSeconds)
	assert.Contains(t, r.System.Uptime, "3 hours")

	html, err := RenderHTML("Shop", r)
	require.NoError(t, err)
	assert.Contains(t, html, "ATTENTION")
	assert.Contains(t, html, "boom &lt;script&gt;")
	assert.Contains(t, html, "#f59e0b")
	assert.Contains(t, Subject(r, fixedNow), "Log Report - ATTENTION - 2026-03-10")

	empty := &Generator{Dir: t.TempDir(), Now: func() time.Time { return fixedNow }}
	r, err = empty.Generate(0)
	require.NoError(t, err)
	assert.Equal(t, "0", r.Summary.ErrorRate)
	assert.Equal(t, Healthy, r.Summary.HealthStatus)
	assert.Equal(t, 7, r.Period.Days)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, e notify.Email) (string, error) {
	if strings.HasPrefix(e.To, "bad") {
		return "", errors.New("mailbox unavailable")
	}
	m.mu.Lock()
	m.sent = append(m.sent, e.To)
	m.mu.Unlock()
	return "id", nil
}

func TestSendBulk(t *testing.T) {
	m := &recordingMailer{}
	s := &Sender{
		Generator: &Generator{Dir: writeLogs(t, 0, 3), Now: func() time.Time { return fixedNow }},
		Mailer:    m,
		App:       "Shop",
		Log:       quietLog(),
	}
	res, err := s.SendBulk(context.Background(), []string{"a@x.io", "bad@x.io", "b@x.io"}, 1)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Successful: 2, Failed: 1, Total: 3}, res)
	assert.ElementsMatch(t, []string{"a@x.io", "b@x.io"}, m.sent)

	assert.Error(t, s.Send(context.Background(), "bad@x.io", 1))
}

func TestScheduler(t *testing.T) {
	sender := &Sender{Generator: &Generator{Dir: t.TempDir()}, Mailer: &recordingMailer{}, Log: quietLog()}

	off := &Scheduler{Config: config.LogReportConfig{Enabled: false, Recipients: []string{"a@x.io"}}, Sender: sender, Log: quietLog()}
	assert.False(t, off.Start())

	noOne := &Scheduler{Config: config.LogReportConfig{Enabled: true}, Sender: sender, Log: quietLog()}
	assert.False(t, noOne.Start())
	_, err := noOne.SendNow(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ErrNoRecipients)

	s := &Scheduler{
		Config: config.LogReportConfig{Enabled: true, Frequency: "fortnightly-ish", Recipients: []string{"a@x.io"}},
		Sender: sender,
		Log:    quietLog(),
	}
	require.True(t, s.Start())
	st := s.Status()
	require.Len(t, st.ActiveTasks, 1)
	assert.Equal(t, "weekly", st.ActiveTasks[0].Frequency)
	assert.Equal(t, "0 9 * * 1", st.ActiveTasks[0].CronPattern)
	assert.Equal(t, "UTC", st.Timezone)
	assert.Equal(t, 7, s.days("weekly"))

	res, err := s.SendNow(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Empty(t, s.Status().ActiveTasks)
}

func TestAvailableSchedules(t *testing.T) {
	all := AvailableSchedules()
	require.Len(t, all, 8)
	byName := map[string]Schedule{}
	for _, s := range all {
		byName[s.Name] = s
	}
	assert.Equal(t, 14, byName["biweekly"].Days)
	assert.Equal(t, "*/10 * * * *", byName["every10min"].Pattern)
}
