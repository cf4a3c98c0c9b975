package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

func TestMultiPanelRunPublicPanels(t *testing.T) {
	pages := map[string]string{
		"http://shop.test":       `<html><head><title>Shop</title></head><body><h1>Welcome</h1></body></html>`,
		"http://shop.test/admin": `<html><head><title>Back office</title></head><body><h1>Orders</h1></body></html>`,
	}
	cfg := MultiPanelConfig{
		Landing: PanelTarget{Name: "landing", URL: "http://shop.test"},
		Admin:   PanelTarget{Name: "admin", URL: "http://shop.test/admin"},
		Base:    Config{Depth: DepthShallow},
	}
	rec := &progressRecorder{}
	m := NewMultiPanel(cfg, siteFactory(pages, nil), WithProgress(rec.record))

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, report.PanelReports, "landing")
	require.Contains(t, report.PanelReports, "admin")
	assert.Equal(t, 1, report.PanelReports["landing"].Summary.Passed)

	// Two public panels probe each other: four checks, none violated.
	require.Len(t, report.RBACFindings, 4)
	for _, f := range report.RBACFindings {
		assert.Equal(t, "allowed", f.Expected)
		assert.Equal(t, "allowed", f.Actual)
		assert.False(t, f.Violation)
	}
	assert.Empty(t, report.ConsistencyFindings, "no user panel configured")
	assert.NotZero(t, report.GeneratedAt)

	phases := rec.phases()
	assert.Contains(t, phases, Phase("landing:discovery"))
	assert.Contains(t, phases, Phase("admin:completed"))
	assert.Contains(t, phases, Phase("cross:rbac"))
}

func TestMultiPanelFailingPanelNamesItself(t *testing.T) {
	cfg := MultiPanelConfig{
		Landing: PanelTarget{Name: "landing", URL: "http://gone.test"},
		Admin:   PanelTarget{Name: "admin", URL: "http://gone.test/admin"},
	}
	m := NewMultiPanel(cfg, siteFactory(map[string]string{}, nil))

	_, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panel landing")
}

func TestLoginFillsCredentials(t *testing.T) {
	driver := &fakeDriver{elements: map[string]*browser.Element{
		"css:input[type=password]": {Selector: "#pw", Visible: true},
		"css:input[type=email]":    {Selector: "#email", Visible: true},
	}}

	err := login(context.Background(), driver, "http://shop.test/app", Credentials{
		Username: "user@shop.test",
		Password: "hunter2!",
	})
	require.NoError(t, err)
	assert.Equal(t, "user@shop.test", driver.fills["#email"])
	assert.Equal(t, "hunter2!", driver.fills["#pw"])
	require.Len(t, driver.clicks, 1)
}

func TestLoginSkipsPanelsWithoutGate(t *testing.T) {
	driver := &fakeDriver{}

	err := login(context.Background(), driver, "http://shop.test", Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Empty(t, driver.fills)
	assert.Empty(t, driver.clicks)
}

func TestProbeAccessClassification(t *testing.T) {
	pages := map[string]string{
		"http://shop.test":       `<h1>Welcome</h1>`,
		"http://shop.test/admin": `<form><input type="password" name="pw"></form>`,
	}
	m := NewMultiPanel(MultiPanelConfig{}, siteFactory(pages, nil))
	visitor := PanelTarget{Name: "visitor"}

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "public page", url: "http://shop.test", want: "allowed"},
		{name: "login gate", url: "http://shop.test/admin", want: "denied"},
		{name: "unreachable page", url: "http://shop.test/secret", want: "denied"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := m.probeAccess(context.Background(), visitor, tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.want, actual)
		})
	}
}

func TestConsistencyPassComparesEntities(t *testing.T) {
	pages := map[string]string{
		"http://shop.test/admin": `<table><tbody>
			<tr><td>Widget</td><td>12</td></tr>
			<tr><td>Gadget</td><td>3</td></tr>
		</tbody></table>`,
		"http://shop.test/app": `<ul><li>Widget</li></ul>`,
	}
	user := PanelTarget{Name: "user", URL: "http://shop.test/app"}
	cfg := MultiPanelConfig{
		Landing: PanelTarget{Name: "landing", URL: "http://shop.test"},
		User:    &user,
		Admin:   PanelTarget{Name: "admin", URL: "http://shop.test/admin"},
	}
	m := NewMultiPanel(cfg, siteFactory(pages, nil))

	findings, err := m.consistencyPass(context.Background(), m.panels())
	require.NoError(t, err)
	require.Len(t, findings, 2)

	byEntity := make(map[string]ConsistencyFinding)
	for _, f := range findings {
		byEntity[f.Entity] = f
	}
	assert.True(t, byEntity["Widget"].Consistent)
	assert.False(t, byEntity["Gadget"].Consistent)
	assert.Contains(t, byEntity["Gadget"].Detail, "not in user")
}

func TestExtractEntityNames(t *testing.T) {
	html := `
	<h2>Products</h2>
	<table><tbody>
		<tr><td>Widget</td><td>in stock</td></tr>
		<tr><td>Widget</td><td>duplicate row</td></tr>
		<tr><td>Gadget</td><td>sold out</td></tr>
	</tbody></table>
	<ul><li>Gizmo</li><li></li></ul>`

	names := extractEntityNames(html, 4)
	assert.Equal(t, []string{"Products", "Widget", "Gadget", "Gizmo"}, names)

	assert.Len(t, extractEntityNames(html, 2), 2)
	assert.Empty(t, extractEntityNames("<p>nothing tabular</p>", 5))
}
