package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

// Credentials authenticate one panel's role.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// PanelTarget is one role-scoped area of the application under test.
type PanelTarget struct {
	Name        string       `json:"name" yaml:"name"`
	URL         string       `json:"url" yaml:"url"`
	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`
}

// MultiPanelConfig runs the pipeline across up to three panels. Landing and
// Admin are required; User is optional.
type MultiPanelConfig struct {
	Landing PanelTarget  `json:"landing" yaml:"landing"`
	User    *PanelTarget `json:"user,omitempty" yaml:"user,omitempty"`
	Admin   PanelTarget  `json:"admin" yaml:"admin"`

	Base Config `json:"base" yaml:"base"`
}

// RBACFinding is one violated or verified access expectation.
type RBACFinding struct {
	Role      string `json:"role"`
	URL       string `json:"url"`
	Expected  string `json:"expected"` // "allowed" or "denied"
	Actual    string `json:"actual"`
	Violation bool   `json:"violation"`
}

// ConsistencyFinding records one cross-panel entity comparison.
type ConsistencyFinding struct {
	Entity     string `json:"entity"`
	PanelA     string `json:"panel_a"`
	PanelB     string `json:"panel_b"`
	Consistent bool   `json:"consistent"`
	Detail     string `json:"detail,omitempty"`
}

// MultiPanelReport consolidates per-panel runs with the cross-cutting
// passes.
type MultiPanelReport struct {
	PanelReports        map[string]*Report   `json:"panel_reports"`
	RBACFindings        []RBACFinding        `json:"rbac_findings"`
	ConsistencyFindings []ConsistencyFinding `json:"consistency_findings"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

// MultiPanelOrchestrator runs the autonomous pipeline once per panel, then
// layers the RBAC and data-consistency passes across panels.
type MultiPanelOrchestrator struct {
	cfg       MultiPanelConfig
	newDriver DriverFactory
	opts      []Option
	progress  ProgressFunc
}

func NewMultiPanel(cfg MultiPanelConfig, newDriver DriverFactory, opts ...Option) *MultiPanelOrchestrator {
	m := &MultiPanelOrchestrator{cfg: cfg, newDriver: newDriver, opts: opts}
	for _, opt := range opts {
		probe := &Orchestrator{}
		opt(probe)
		if probe.progress != nil {
			m.progress = probe.progress
		}
	}
	return m
}

func (m *MultiPanelOrchestrator) emit(panel string, u ProgressUpdate) {
	if m.progress == nil {
		return
	}
	u.Phase = Phase(fmt.Sprintf("%s:%s", panel, u.Phase))
	m.progress(u)
}

// Run executes every configured panel in order, then the cross-cutting
// passes. A panel failing aborts the whole multi-panel run; its error names
// the panel.
func (m *MultiPanelOrchestrator) Run(ctx context.Context) (*MultiPanelReport, error) {
	report := &MultiPanelReport{PanelReports: make(map[string]*Report)}

	panels := m.panels()
	for _, panel := range panels {
		panelCfg := m.cfg.Base
		panelCfg.TargetURL = panel.URL

		name := panel.Name
		opts := append([]Option{}, m.opts...)
		opts = append(opts, WithProgress(func(u ProgressUpdate) {
			m.emit(name, u)
		}))

		orch := New(panelCfg, m.driverFor(panel), opts...)
		panelReport, err := orch.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("panel %s: %w", name, err)
		}
		report.PanelReports[name] = panelReport
	}

	m.emit("cross", ProgressUpdate{Phase: "rbac", Progress: 0, Message: "checking role access boundaries"})
	rbac, err := m.rbacPass(ctx, panels)
	if err != nil {
		return nil, fmt.Errorf("rbac pass: %w", err)
	}
	report.RBACFindings = rbac
	m.emit("cross", ProgressUpdate{Phase: "rbac", Progress: 100, Message: fmt.Sprintf("%d access checks", len(rbac))})

	m.emit("cross", ProgressUpdate{Phase: "consistency", Progress: 0, Message: "checking cross-panel data consistency"})
	consistency, err := m.consistencyPass(ctx, panels)
	if err != nil {
		return nil, fmt.Errorf("consistency pass: %w", err)
	}
	report.ConsistencyFindings = consistency
	m.emit("cross", ProgressUpdate{Phase: "consistency", Progress: 100, Message: fmt.Sprintf("%d entities compared", len(consistency))})

	report.GeneratedAt = time.Now().UTC()
	return report, nil
}

func (m *MultiPanelOrchestrator) panels() []PanelTarget {
	panels := []PanelTarget{m.cfg.Landing}
	if m.cfg.User != nil {
		panels = append(panels, *m.cfg.User)
	}
	panels = append(panels, m.cfg.Admin)
	return panels
}

// driverFor wraps the driver factory with the panel's login, so every phase
// of that panel's run starts authenticated.
func (m *MultiPanelOrchestrator) driverFor(panel PanelTarget) DriverFactory {
	if panel.Credentials == nil {
		return m.newDriver
	}
	creds := *panel.Credentials
	return func(ctx context.Context) (browser.Driver, error) {
		driver, err := m.newDriver(ctx)
		if err != nil {
			return nil, err
		}
		if err := login(ctx, driver, panel.URL, creds); err != nil {
			_ = driver.Close()
			return nil, fmt.Errorf("login to panel %s failed: %w", panel.Name, err)
		}
		return driver, nil
	}
}

// login fills the first password-bearing form it finds on the panel URL.
func login(ctx context.Context, driver browser.Driver, url string, creds Credentials) error {
	if err := driver.Navigate(ctx, url); err != nil {
		return err
	}
	passEl, err := driver.FindElement(ctx, "css", "input[type=password]")
	if err != nil || passEl == nil {
		// Panel has no login form on its entry page; assume public access.
		return nil
	}
	userSelectors := []string{"input[type=email]", "input[name=username]", "input[name=email]", "input[type=text]"}
	for _, sel := range userSelectors {
		el, err := driver.FindElement(ctx, "css", sel)
		if err == nil && el != nil {
			if err := driver.Fill(ctx, el.Selector, creds.Username); err != nil {
				return err
			}
			break
		}
	}
	if err := driver.Fill(ctx, passEl.Selector, creds.Password); err != nil {
		return err
	}
	return driver.Click(ctx, "button[type=submit], input[type=submit]")
}

// rbacPass asserts each role sees the access it should and nothing more:
// every role is pointed at every other panel's entry URL, expecting denial
// unless the target panel is public or its own.
func (m *MultiPanelOrchestrator) rbacPass(ctx context.Context, panels []PanelTarget) ([]RBACFinding, error) {
	var findings []RBACFinding
	for _, role := range panels {
		for _, target := range panels {
			expected := "denied"
			if target.Name == role.Name || target.Credentials == nil {
				expected = "allowed"
			}
			actual, err := m.probeAccess(ctx, role, target.URL)
			if err != nil {
				return nil, err
			}
			findings = append(findings, RBACFinding{
				Role:      role.Name,
				URL:       target.URL,
				Expected:  expected,
				Actual:    actual,
				Violation: expected != actual,
			})
		}
	}
	return findings, nil
}

// probeAccess loads url as the given role and classifies the outcome by
// whether a login gate or denial marker is shown.
func (m *MultiPanelOrchestrator) probeAccess(ctx context.Context, role PanelTarget, url string) (string, error) {
	driver, err := m.driverFor(role)(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = driver.Close() }()

	if err := driver.Navigate(ctx, url); err != nil {
		return "denied", nil
	}
	html, err := driver.PageHTML(ctx)
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(html)
	current, _ := driver.CurrentURL(ctx)
	switch {
	case strings.Contains(lower, "access denied"),
		strings.Contains(lower, "forbidden"),
		strings.Contains(lower, "not authorized"),
		strings.Contains(strings.ToLower(current), "login"):
		return "denied", nil
	case strings.Contains(lower, "input type=\"password\""),
		strings.Contains(lower, "type=password"):
		return "denied", nil
	default:
		return "allowed", nil
	}
}

// consistencyPass samples entity headings visible in the admin panel and
// verifies each is represented identically in the user panel. Panels without
// overlap produce no findings.
func (m *MultiPanelOrchestrator) consistencyPass(ctx context.Context, panels []PanelTarget) ([]ConsistencyFinding, error) {
	if m.cfg.User == nil {
		return nil, nil
	}
	admin := m.cfg.Admin
	user := *m.cfg.User

	adminEntities, err := m.sampleEntities(ctx, admin)
	if err != nil {
		return nil, err
	}
	if len(adminEntities) == 0 {
		return nil, nil
	}
	userHTML, err := m.pageText(ctx, user)
	if err != nil {
		return nil, err
	}

	var findings []ConsistencyFinding
	for _, entity := range adminEntities {
		consistent := strings.Contains(userHTML, entity)
		f := ConsistencyFinding{
			Entity:     entity,
			PanelA:     admin.Name,
			PanelB:     user.Name,
			Consistent: consistent,
		}
		if !consistent {
			f.Detail = fmt.Sprintf("entity %q visible in %s but not in %s", entity, admin.Name, user.Name)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// sampleEntities pulls the first few table-row or list-item headings from a
// panel's entry page.
func (m *MultiPanelOrchestrator) sampleEntities(ctx context.Context, panel PanelTarget) ([]string, error) {
	html, err := m.pageText(ctx, panel)
	if err != nil {
		return nil, err
	}
	return extractEntityNames(html, 5), nil
}

// extractEntityNames pulls up to limit entity-looking headings out of
// rendered HTML: first table cells, then list items and subheadings.
func extractEntityNames(html string, limit int) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	doc.Find("table tbody tr td:first-child, ul li, h2, h3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if text == "" || len(text) > 80 || seen[text] {
			return true
		}
		seen[text] = true
		names = append(names, text)
		return len(names) < limit
	})
	return names
}

func (m *MultiPanelOrchestrator) pageText(ctx context.Context, panel PanelTarget) (string, error) {
	driver, err := m.driverFor(panel)(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = driver.Close() }()
	if err := driver.Navigate(ctx, panel.URL); err != nil {
		return "", err
	}
	return driver.PageHTML(ctx)
}
