// Package report summarizes the service's own log files and mails the
// summary to operators on a schedule.
package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

const maxSamples = 10

type Entry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
}

type Stats struct {
	Total    int     `json:"total"`
	Error    int     `json:"error"`
	Warn     int     `json:"warn"`
	Info     int     `json:"info"`
	HTTP     int     `json:"http"`
	Debug    int     `json:"debug"`
	Errors   []Entry `json:"errors"`
	Warnings []Entry `json:"warnings"`
}

// line covers both our logrus JSON output and the older message/timestamp shape.
type line struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Message   string `json:"message"`
	Time      string `json:"time"`
	Timestamp string `json:"timestamp"`
	Stack     string `json:"stack"`
	Error     string `json:"error"`
}

func (l line) message() string {
	if l.Msg != "" {
		return l.Msg
	}
	return l.Message
}

func (l line) when() string {
	if l.Time != "" {
		return l.Time
	}
	return l.Timestamp
}

func (l line) stack() string {
	if l.Stack != "" {
		return l.Stack
	}
	return l.Error
}

var timeLayouts = []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339}

// before reports whether ts is parseable and earlier than since.
func before(ts string, since time.Time) bool {
	if since.IsZero() || ts == "" {
		return false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, ts, since.Location()); err == nil {
			return t.Before(since)
		}
	}
	return false
}

// Parse counts log lines by level. JSON lines older than since are skipped;
// lines that are not JSON are classified by substring.
func Parse(r io.Reader, since time.Time) (Stats, error) {
	st := Stats{Errors: []Entry{}, Warnings: []Entry{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			st.Total++
			switch {
			case strings.Contains(raw, "error") || strings.Contains(raw, "ERROR"):
				st.Error++
			case strings.Contains(raw, "warn") || strings.Contains(raw, "WARN"):
				st.Warn++
			default:
				st.Info++
			}
			continue
		}
		if before(l.when(), since) {
			continue
		}
		st.Total++
		switch strings.ToLower(l.Level) {
		case "error", "fatal", "panic":
			st.Error++
			if len(st.Errors) < maxSamples {
				st.Errors = append(st.Errors, Entry{Timestamp: l.when(), Message: l.message(), Stack: l.stack()})
			}
		case "warn", "warning":
			st.Warn++
			if len(st.Warnings) < maxSamples {
				st.Warnings = append(st.Warnings, Entry{Timestamp: l.when(), Message: l.message()})
			}
		case "info":
			st.Info++
		case "http":
			st.HTTP++
		case "debug", "trace":
			st.Debug++
		}
	}
	return st, sc.Err()
}

// ParseFile returns nil stats when the file does not exist yet.
func ParseFile(path string, since time.Time) (*Stats, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := Parse(f, since)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
