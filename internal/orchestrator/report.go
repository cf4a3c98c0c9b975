package orchestrator

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// report assembles the final artifact and writes the JSON and HTML renditions
// to the configured output directory.
func (o *Orchestrator) report(appMap *ApplicationMap, results *ExecutionResults, analysis *AnalysisResult, elapsed time.Duration) (*Report, error) {
	report := &Report{
		SessionID: o.sessionID,
		TargetURL: o.cfg.TargetURL,
		Depth:     o.cfg.Depth,
		Summary: ReportSummary{
			Total:    results.Total,
			Passed:   results.Passed,
			Failed:   results.Failed,
			Healed:   results.Healed,
			Duration: elapsed,
			Coverage: coverage(appMap, results),
		},
		Tests:       results.Results,
		Analysis:    analysis,
		GeneratedAt: time.Now().UTC(),
	}

	dir := o.cfg.OutputDir
	if dir == "" {
		return report, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	jsonPath := filepath.Join(dir, fmt.Sprintf("report-%s.json", o.sessionID))
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write JSON report: %w", err)
	}
	report.JSONPath = jsonPath

	htmlPath := filepath.Join(dir, fmt.Sprintf("report-%s.html", o.sessionID))
	f, err := os.Create(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTML report: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := reportTemplate.Execute(f, report); err != nil {
		return nil, fmt.Errorf("failed to render HTML report: %w", err)
	}
	report.HTMLPath = htmlPath
	return report, nil
}

// coverage is the fraction of discovered pages that at least one executed
// test visited.
func coverage(appMap *ApplicationMap, results *ExecutionResults) float64 {
	if len(appMap.Pages) == 0 {
		return 0
	}
	visited := make(map[string]bool)
	for _, r := range results.Results {
		for _, url := range r.VisitedURLs {
			visited[normalizeURL(url)] = true
		}
	}
	touched := 0
	for _, page := range appMap.Pages {
		if visited[normalizeURL(page.URL)] {
			touched++
		}
	}
	return float64(touched) / float64(len(appMap.Pages))
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>TestMaster report {{.SessionID}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
th { background: #f4f4f4; }
.passed { color: #1a7f37; }
.failed { color: #cf222e; }
.healed { color: #9a6700; }
</style>
</head>
<body>
<h1>Autonomous test report</h1>
<p>Target: {{.TargetURL}} (depth: {{.Depth}})</p>
<p>
  Total {{.Summary.Total}} ·
  <span class="passed">{{.Summary.Passed}} passed</span> ·
  <span class="failed">{{.Summary.Failed}} failed</span> ·
  <span class="healed">{{.Summary.Healed}} healed</span> ·
  coverage {{printf "%.0f%%" .Summary.CoveragePercent}}
</p>
<table>
<tr><th>Test</th><th>Type</th><th>Status</th><th>Duration</th><th>Error</th></tr>
{{range .Tests}}
<tr>
  <td>{{.Name}}</td>
  <td>{{.Type}}</td>
  <td class="{{.Status}}">{{.Status}}</td>
  <td>{{.Duration}}</td>
  <td>{{.Error}}</td>
</tr>
{{end}}
</table>
{{if .Analysis}}{{if .Analysis.Findings}}
<h2>Failure analysis</h2>
<table>
<tr><th>Test</th><th>Category</th><th>Root cause</th><th>Suggested fix</th><th>Confidence</th></tr>
{{range .Analysis.Findings}}
<tr>
  <td>{{.TestID}}</td>
  <td>{{.Category}}</td>
  <td>{{.RootCause}}</td>
  <td>{{.SuggestedFix}}</td>
  <td>{{printf "%.2f" .Confidence}}</td>
</tr>
{{end}}
</table>
{{end}}{{end}}
<p><small>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}} · session {{.SessionID}}</small></p>
</body>
</html>
`))
