package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
)

var statusColors = map[string]string{
	Healthy:   "#10b981",
	Attention: "#f59e0b",
	Warning:   "#f97316",
	Critical:  "#ef4444",
}

var statusMarks = map[string]string{
	Healthy:   "✅",
	Attention: "⚠️",
	Warning:   "⚠️",
	Critical:  "🚨",
}

var emailTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Log Report - {{.App}}</title>
<style>
body{font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background:#f3f4f6;margin:0;padding:20px;color:#1f2937}
.container{max-width:800px;margin:0 auto;background:#fff;border-radius:8px;overflow:hidden}
.header{background:linear-gradient(135deg,#667eea 0%,#764ba2 100%);color:#fff;padding:30px;text-align:center}
.content{padding:30px}
.badge{display:inline-block;padding:8px 16px;border-radius:20px;font-weight:600;color:#fff}
.stat{display:inline-block;min-width:150px;background:#f9fafb;border:1px solid #e5e7eb;border-radius:6px;padding:15px;margin:5px;text-align:center}
.entry{background:#fef2f2;border-left:4px solid #ef4444;padding:12px;margin-bottom:10px;font-size:13px}
.entry.warning{background:#fffbeb;border-left-color:#f59e0b}
.ts{color:#6b7280;font-size:11px}
.footer{padding:20px;text-align:center;color:#6b7280;font-size:12px}
</style>
</head>
<body>
<div class="container">
<div class="header">
<h1>Log Report - {{.App}}</h1>
<p>{{.R.Period.From}} to {{.R.Period.To}} ({{.R.Period.Days}} days)</p>
</div>
<div class="content">
<span class="badge" style="background-color:{{.Color}}">{{.R.Summary.HealthStatus}}</span>
<div>
<div class="stat"><div>Total Logs</div><strong>{{comma .R.Summary.TotalLogs}}</strong></div>
<div class="stat"><div>Errors</div><strong>{{comma .R.Summary.ErrorCount}}</strong></div>
<div class="stat"><div>Warnings</div><strong>{{comma .R.Summary.WarningCount}}</strong></div>
<div class="stat"><div>Error Rate</div><strong>{{.R.Summary.ErrorRate}}%</strong></div>
</div>
{{with .R.Combined.Errors}}<h3>Recent Errors</h3>
{{range .}}<div class="entry"><div class="ts">{{.Timestamp}}</div><div>{{.Message}}</div>{{with .Stack}}<pre>{{.}}</pre>{{end}}</div>
{{end}}{{end}}
{{with .R.Combined.Warnings}}<h3>Recent Warnings</h3>
{{range .}}<div class="entry warning"><div class="ts">{{.Timestamp}}</div><div>{{.Message}}</div></div>
{{end}}{{end}}
<h3>System Metrics</h3>
<table>
<tr><td>Uptime</td><td>{{.R.System.Uptime}}</td></tr>
<tr><td>Memory (Sys)</td><td>{{.R.System.Memory.Sys}}</td></tr>
<tr><td>Memory (Heap)</td><td>{{.R.System.Memory.HeapAlloc}}</td></tr>
<tr><td>Goroutines</td><td>{{.R.System.Goroutines}}</td></tr>
<tr><td>Go Version</td><td>{{.R.System.GoVersion}}</td></tr>
<tr><td>Platform</td><td>{{.R.System.Platform}}</td></tr>
<tr><td>Report Generated</td><td>{{.R.System.Timestamp}}</td></tr>
</table>
<h3>Log Distribution</h3>
<table>
<tr><td>Info</td><td>{{comma .R.Combined.Info}}</td></tr>
<tr><td>HTTP</td><td>{{comma .R.Combined.HTTP}}</td></tr>
<tr><td>Debug</td><td>{{comma .R.Combined.Debug}}</td></tr>
</table>
</div>
<div class="footer">This is an automated report from your application monitoring system.</div>
</div>
</body>
</html>`))

func RenderHTML(app string, r *Report) (string, error) {
	color, ok := statusColors[r.Summary.HealthStatus]
	if !ok {
		color = "#6b7280"
	}
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, struct {
		App   string
		Color template.CSS
		R     *Report
	}{app, template.CSS(color), r})
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func Subject(r *Report, now time.Time) string {
	return fmt.Sprintf("%s Log Report - %s - %s", statusMarks[r.Summary.HealthStatus], r.Summary.HealthStatus, now.Format("2006-01-02"))
}
