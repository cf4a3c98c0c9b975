package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generate converts the ApplicationMap into an ordered list of tests covering
// navigation, form submission, CRUD surfaces, API endpoints and, when
// requested, permission boundaries. Higher priority runs first.
func (o *Orchestrator) generate(ctx context.Context, appMap *ApplicationMap) ([]GeneratedTest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tests []GeneratedTest

	for _, flow := range appMap.Flows {
		tests = append(tests, navigationTest(flow))
	}
	// A single-page site still gets a smoke test of its landing page.
	if len(tests) == 0 && len(appMap.Pages) > 0 {
		tests = append(tests, GeneratedTest{
			ID:                uuid.NewString(),
			Name:              "landing page loads",
			Type:              TestNavigation,
			Priority:          1,
			EstimatedDuration: 5 * time.Second,
			PageURL:           appMap.Pages[0].URL,
			Steps: []TestStep{
				{Action: ActionNavigate, Value: appMap.Pages[0].URL},
			},
		})
	}

	for i := range appMap.Pages {
		page := &appMap.Pages[i]
		for j := range page.Forms {
			form := &page.Forms[j]
			if form.IsRegistration || form.IsLogin {
				continue
			}
			tests = append(tests, o.formTest(page, form))
		}
		if crud := crudTest(page); crud != nil {
			tests = append(tests, *crud)
		}
	}

	for _, ep := range appMap.APIEndpoints {
		tests = append(tests, apiTest(o.cfg.APIURL, ep))
	}

	if o.cfg.TestRBAC {
		tests = append(tests, rbacTests(appMap)...)
	}

	sort.SliceStable(tests, func(i, j int) bool {
		return tests[i].Priority < tests[j].Priority
	})
	if len(tests) == 0 {
		return nil, fmt.Errorf("nothing to test: application map is empty")
	}
	return tests, nil
}

func navigationTest(flow UserFlow) GeneratedTest {
	t := GeneratedTest{
		ID:                uuid.NewString(),
		Name:              flow.Name,
		Type:              TestNavigation,
		Priority:          1,
		EstimatedDuration: time.Duration(len(flow.Pages)) * 5 * time.Second,
	}
	for _, page := range flow.Pages {
		t.Steps = append(t.Steps, TestStep{Action: ActionNavigate, Value: page})
	}
	return t
}

func (o *Orchestrator) formTest(page *PageInfo, form *Form) GeneratedTest {
	t := GeneratedTest{
		ID:                uuid.NewString(),
		Name:              fmt.Sprintf("submit form %s on %s", form.Selector, page.URL),
		Type:              TestForm,
		Priority:          2,
		PageURL:           page.URL,
		EstimatedDuration: time.Duration(len(form.Fields)+2) * 3 * time.Second,
	}
	t.Steps = append(t.Steps, TestStep{Action: ActionNavigate, Value: page.URL})
	for _, field := range form.Fields {
		t.Steps = append(t.Steps, TestStep{
			Action:   ActionFill,
			Locator:  field.Selector,
			ObjectID: fmt.Sprintf("%s#%s", page.URL, field.Selector),
			Value:    o.faker.AutoFill(field.Name, field.Placeholder, field.Type),
		})
	}
	if form.SubmitSelector != "" {
		t.Steps = append(t.Steps, TestStep{
			Action:   ActionClick,
			Locator:  form.SubmitSelector,
			ObjectID: fmt.Sprintf("%s#%s", page.URL, form.SubmitSelector),
		})
	}
	return t
}

// crudKeywords mark elements that look like entity-management controls.
var crudKeywords = []string{"create", "add", "new", "edit", "update", "delete", "remove", "save"}

// crudTest exercises the first create/edit/delete-looking control on a page.
func crudTest(page *PageInfo) *GeneratedTest {
	for _, el := range page.Elements {
		if !el.Clickable || el.Text == "" {
			continue
		}
		lower := strings.ToLower(el.Text)
		for _, kw := range crudKeywords {
			if strings.Contains(lower, kw) {
				return &GeneratedTest{
					ID:                uuid.NewString(),
					Name:              fmt.Sprintf("CRUD control %q on %s", el.Text, page.URL),
					Type:              TestCRUD,
					Priority:          3,
					PageURL:           page.URL,
					EstimatedDuration: 10 * time.Second,
					Steps: []TestStep{
						{Action: ActionNavigate, Value: page.URL},
						{Action: ActionClick, Locator: el.Selector, ObjectID: fmt.Sprintf("%s#%s", page.URL, el.Selector)},
					},
				}
			}
		}
	}
	return nil
}

func apiTest(apiURL string, ep APIEndpoint) GeneratedTest {
	return GeneratedTest{
		ID:                uuid.NewString(),
		Name:              fmt.Sprintf("%s %s responds", ep.Method, ep.Path),
		Type:              TestAPI,
		Priority:          2,
		EstimatedDuration: 5 * time.Second,
		Steps: []TestStep{
			{
				Action:     ActionAPIRequest,
				Method:     ep.Method,
				URL:        strings.TrimSuffix(apiURL, "/") + ep.Path,
				WantStatus: ep.Status,
			},
		},
	}
}

// rbacTests assert that pages which look privileged are not silently served
// to an unauthenticated visitor.
func rbacTests(appMap *ApplicationMap) []GeneratedTest {
	var tests []GeneratedTest
	for _, page := range appMap.Pages {
		lower := strings.ToLower(page.URL)
		if strings.Contains(lower, "/admin") || strings.Contains(lower, "/settings") || strings.Contains(lower, "/manage") {
			tests = append(tests, GeneratedTest{
				ID:                uuid.NewString(),
				Name:              fmt.Sprintf("unauthenticated access to %s is denied", page.URL),
				Type:              TestRBAC,
				Priority:          4,
				PageURL:           page.URL,
				EstimatedDuration: 5 * time.Second,
				Steps: []TestStep{
					{Action: ActionNavigate, Value: page.URL},
					{Action: ActionAssertText, Value: "login", Expected: "present"},
				},
			})
		}
	}
	return tests
}
