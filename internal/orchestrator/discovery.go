package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/testmaster-ai/testmaster/internal/browser"
)

// discover crawls the target breadth-first up to the configured depth tier
// and builds the ApplicationMap consumed by generation.
func (o *Orchestrator) discover(ctx context.Context) (*ApplicationMap, error) {
	if o.cfg.TargetURL == "" {
		return nil, fmt.Errorf("no target URL configured")
	}
	base, err := url.Parse(o.cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	driver, err := o.newDriver(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = driver.Close() }()

	limits := limitsFor(o.cfg.Depth)
	appMap := &ApplicationMap{BaseURL: o.cfg.TargetURL}

	type queued struct {
		url   string
		depth int
	}
	visited := map[string]bool{}
	queue := []queued{{url: o.cfg.TargetURL, depth: 0}}

	for len(queue) > 0 && len(appMap.Pages) < limits.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := queue[0]
		queue = queue[1:]

		norm := normalizeURL(next.url)
		if visited[norm] {
			continue
		}
		visited[norm] = true

		page, err := o.crawlPage(ctx, driver, next.url, next.depth)
		if err != nil {
			// One unreachable page does not sink discovery.
			continue
		}
		appMap.Pages = append(appMap.Pages, *page)

		pct := len(appMap.Pages) * 100 / limits.maxPages
		if pct > 99 {
			pct = 99
		}
		o.emit(PhaseDiscovery, pct, fmt.Sprintf("crawled %s", page.URL), map[string]any{
			"elements": len(page.Elements),
			"forms":    len(page.Forms),
		})

		if next.depth >= limits.maxDepth {
			continue
		}
		for _, link := range page.Links {
			target, err := base.Parse(link)
			if err != nil || target.Host != base.Host {
				continue
			}
			if !visited[normalizeURL(target.String())] {
				queue = append(queue, queued{url: target.String(), depth: next.depth + 1})
			}
		}
	}
	if len(appMap.Pages) == 0 {
		return nil, fmt.Errorf("could not reach any page at %s", o.cfg.TargetURL)
	}

	appMap.Flows = deriveFlows(appMap)
	if o.cfg.APIURL != "" {
		appMap.APIEndpoints = o.probeAPI(ctx, o.cfg.APIURL)
	}
	return appMap, nil
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

func (o *Orchestrator) crawlPage(ctx context.Context, driver browser.Driver, pageURL string, depth int) (*PageInfo, error) {
	if err := driver.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	html, err := driver.PageHTML(ctx)
	if err != nil {
		return nil, err
	}
	return parsePage(pageURL, depth, html)
}

// parsePage extracts elements, forms and links from rendered HTML.
func parsePage(pageURL string, depth int, html string) (*PageInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	page := &PageInfo{URL: pageURL, Depth: depth}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		page.Links = append(page.Links, href)
	})

	doc.Find("button, a[href], input[type=submit], [role=button]").Each(func(i int, sel *goquery.Selection) {
		el := PageElement{
			Type:      goquery.NodeName(sel),
			Selector:  elementSelector(sel),
			Text:      truncate(strings.TrimSpace(sel.Text()), 80),
			Visible:   true,
			Clickable: true,
		}
		if el.Selector != "" {
			page.Elements = append(page.Elements, el)
		}
	})

	doc.Find("form").Each(func(i int, sel *goquery.Selection) {
		form := parseForm(sel, i)
		if len(form.Fields) > 0 {
			page.Forms = append(page.Forms, form)
		}
	})

	return page, nil
}

func parseForm(sel *goquery.Selection, index int) Form {
	form := Form{Selector: elementSelector(sel)}
	if form.Selector == "form" || form.Selector == "" {
		form.Selector = fmt.Sprintf("form:nth-of-type(%d)", index+1)
	}
	form.Action, _ = sel.Attr("action")
	form.Method, _ = sel.Attr("method")

	sel.Find("input, select, textarea").Each(func(_ int, f *goquery.Selection) {
		typ, _ := f.Attr("type")
		if typ == "hidden" || typ == "submit" || typ == "button" {
			return
		}
		name, _ := f.Attr("name")
		placeholder, _ := f.Attr("placeholder")
		_, required := f.Attr("required")
		field := FormField{
			Name:        name,
			Type:        typ,
			Placeholder: placeholder,
			Selector:    elementSelector(f),
			Required:    required,
		}
		if field.Selector != "" {
			form.Fields = append(form.Fields, field)
		}
	})

	if submit := sel.Find("button[type=submit], input[type=submit], button").First(); submit.Length() > 0 {
		form.SubmitSelector = elementSelector(submit)
	}

	text := strings.ToLower(sel.Text() + " " + form.Action)
	hasPassword := false
	fieldCount := 0
	for _, f := range form.Fields {
		if f.Type == "password" || strings.Contains(strings.ToLower(f.Name), "password") {
			hasPassword = true
		}
		fieldCount++
	}
	switch {
	case hasPassword && (strings.Contains(text, "register") || strings.Contains(text, "sign up") || strings.Contains(text, "signup") || fieldCount > 3):
		form.IsRegistration = true
	case hasPassword:
		form.IsLogin = true
	}
	return form
}

// elementSelector builds a stable selector for an element, preferring ids and
// test ids over structural paths.
func elementSelector(sel *goquery.Selection) string {
	if id, ok := sel.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if tid, ok := sel.Attr("data-testid"); ok && tid != "" {
		return fmt.Sprintf(`[data-testid=%q]`, tid)
	}
	tag := goquery.NodeName(sel)
	if name, ok := sel.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}
	if cls, ok := sel.Attr("class"); ok && cls != "" {
		classes := strings.Fields(cls)
		if len(classes) > 2 {
			classes = classes[:2]
		}
		return tag + "." + strings.Join(classes, ".")
	}
	if href, ok := sel.Attr("href"); ok && href != "" {
		return fmt.Sprintf(`%s[href=%q]`, tag, href)
	}
	return tag
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// deriveFlows turns crawl reachability into coarse user flows: one flow per
// depth-1 page reachable from the landing page.
func deriveFlows(appMap *ApplicationMap) []UserFlow {
	var flows []UserFlow
	if len(appMap.Pages) == 0 {
		return flows
	}
	root := appMap.Pages[0].URL
	for _, p := range appMap.Pages[1:] {
		if p.Depth == 1 {
			name := p.Title
			if name == "" {
				name = p.URL
			}
			flows = append(flows, UserFlow{
				Name:  fmt.Sprintf("visit %s", name),
				Pages: []string{root, p.URL},
			})
		}
	}
	return flows
}

// commonAPIPaths are probed against the API base URL when one is configured.
var commonAPIPaths = []string{"/health", "/api", "/api/v1", "/api/users", "/api/projects", "/api/status"}

func (o *Orchestrator) probeAPI(ctx context.Context, apiURL string) []APIEndpoint {
	client := &http.Client{Timeout: 10 * time.Second}
	var endpoints []APIEndpoint
	for _, path := range commonAPIPaths {
		if ctx.Err() != nil {
			return endpoints
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(apiURL, "/")+path, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			endpoints = append(endpoints, APIEndpoint{Method: http.MethodGet, Path: path, Status: resp.StatusCode})
		}
	}
	return endpoints
}

// findRegistrationForm returns the first registration form discovered, with
// its page.
func findRegistrationForm(appMap *ApplicationMap) (*Form, *PageInfo) {
	for i := range appMap.Pages {
		page := &appMap.Pages[i]
		for j := range page.Forms {
			if page.Forms[j].IsRegistration {
				return &page.Forms[j], page
			}
		}
	}
	return nil, nil
}

// register fills and submits a discovered registration form with generated
// account data.
func (o *Orchestrator) register(ctx context.Context, page *PageInfo, form *Form) error {
	driver, err := o.newDriver(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = driver.Close() }()

	if err := driver.Navigate(ctx, page.URL); err != nil {
		return err
	}
	for _, field := range form.Fields {
		value := o.faker.AutoFill(field.Name, field.Placeholder, field.Type)
		if err := driver.Fill(ctx, field.Selector, value); err != nil {
			return fmt.Errorf("failed to fill %s: %w", field.Selector, err)
		}
	}
	if form.SubmitSelector != "" {
		if err := driver.Click(ctx, form.SubmitSelector); err != nil {
			return fmt.Errorf("failed to submit registration form: %w", err)
		}
	}
	return nil
}
