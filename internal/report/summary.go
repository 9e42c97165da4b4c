package report

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ariefcatur/go-commerce-backend/internal/logging"
)

const (
	Healthy   = "HEALTHY"
	Attention = "ATTENTION"
	Warning   = "WARNING"
	Critical  = "CRITICAL"
)

func HealthStatus(errors int) string {
	switch {
	case errors > 100:
		return Critical
	case errors > 50:
		return Warning
	case errors > 10:
		return Attention
	}
	return Healthy
}

type Period struct {
	From string `json:"from"`
	To   string `json:"to"`
	Days int    `json:"days"`
}

type Memory struct {
	Sys       string `json:"sys"`
	HeapAlloc string `json:"heapAlloc"`
	HeapSys   string `json:"heapSys"`
}

type System struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Uptime        string  `json:"uptime"`
	Memory        Memory  `json:"memory"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"goVersion"`
	Platform      string  `json:"platform"`
	Timestamp     string  `json:"timestamp"`
}

type Summary struct {
	TotalLogs    int    `json:"totalLogs"`
	ErrorCount   int    `json:"errorCount"`
	WarningCount int    `json:"warningCount"`
	ErrorRate    string `json:"errorRate"`
	HealthStatus string `json:"healthStatus"`
}

type Report struct {
	Period      Period  `json:"period"`
	Combined    Stats   `json:"combined"`
	ErrorLog    *Stats  `json:"errorLog"`
	CombinedLog *Stats  `json:"combinedLog"`
	System      System  `json:"system"`
	Summary     Summary `json:"summary"`
}

// Generator reads the log directory written by the logging package.
type Generator struct {
	Dir     string
	Started time.Time
	Now     func() time.Time
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Generator) Generate(days int) (*Report, error) {
	if days <= 0 {
		days = 7
	}
	now := g.now()
	since := now.AddDate(0, 0, -days)

	errLog, err := ParseFile(filepath.Join(g.Dir, logging.ErrorFile), since)
	if err != nil {
		return nil, fmt.Errorf("read error log: %w", err)
	}
	combinedLog, err := ParseFile(filepath.Join(g.Dir, logging.CombinedFile), since)
	if err != nil {
		return nil, fmt.Errorf("read combined log: %w", err)
	}

	r := &Report{
		Period:      Period{From: since.Format("2006-01-02"), To: now.Format("2006-01-02"), Days: days},
		Combined:    Stats{Errors: []Entry{}, Warnings: []Entry{}},
		ErrorLog:    errLog,
		CombinedLog: combinedLog,
		System:      g.system(now),
	}
	if combinedLog != nil {
		r.Combined = *combinedLog
	}
	c := r.Combined
	rate := "0"
	if c.Total > 0 {
		rate = fmt.Sprintf("%.2f", float64(c.Error)/float64(c.Total)*100)
	}
	r.Summary = Summary{
		TotalLogs:    c.Total,
		ErrorCount:   c.Error,
		WarningCount: c.Warn,
		ErrorRate:    rate,
		HealthStatus: HealthStatus(c.Error),
	}
	return r, nil
}

func (g *Generator) system(now time.Time) System {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	started := g.Started
	if started.IsZero() {
		started = now
	}
	return System{
		UptimeSeconds: now.Sub(started).Seconds(),
		Uptime:        strings.TrimSpace(humanize.RelTime(started, now, "", "")),
		Memory: Memory{
			Sys:       humanize.Bytes(ms.Sys),
			HeapAlloc: humanize.Bytes(ms.HeapAlloc),
			HeapSys:   humanize.Bytes(ms.HeapSys),
		},
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Timestamp:  now.Format("2006-01-02 15:04:05"),
	}
}
