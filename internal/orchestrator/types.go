package orchestrator

import (
	"time"

	"github.com/testmaster-ai/testmaster/internal/healing"
)

// Phase is one stage of the autonomous pipeline. Transitions are strictly
// sequential; error is terminal and reachable from any phase.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDiscovery    Phase = "discovery"
	PhaseRegistration Phase = "registration"
	PhaseGeneration   Phase = "generation"
	PhaseExecution    Phase = "execution"
	PhaseAnalysis     Phase = "analysis"
	PhaseReport       Phase = "report"
	PhaseCompleted    Phase = "completed"
	PhaseError        Phase = "error"
)

// Depth bounds how far discovery crawls.
type Depth string

const (
	DepthShallow    Depth = "shallow"
	DepthDeep       Depth = "deep"
	DepthExhaustive Depth = "exhaustive"
)

type depthLimits struct {
	maxPages int
	maxDepth int
}

func limitsFor(d Depth) depthLimits {
	switch d {
	case DepthDeep:
		return depthLimits{maxPages: 25, maxDepth: 3}
	case DepthExhaustive:
		return depthLimits{maxPages: 100, maxDepth: 5}
	default:
		return depthLimits{maxPages: 5, maxDepth: 1}
	}
}

// Config is the per-session configuration, supplied whole at session start
// and immutable while the session runs.
type Config struct {
	TargetURL          string         `json:"target_url" yaml:"target_url"`
	APIURL             string         `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	Depth              Depth          `json:"depth" yaml:"depth"`
	AutoRegister       bool           `json:"auto_register" yaml:"auto_register"`
	TestRBAC           bool           `json:"test_rbac" yaml:"test_rbac"`
	EnableHealing      bool           `json:"enable_healing" yaml:"enable_healing"`
	ParallelWorkers    int            `json:"parallel_workers" yaml:"parallel_workers"`
	CaptureScreenshots bool           `json:"capture_screenshots" yaml:"capture_screenshots"`
	OutputDir          string         `json:"output_dir" yaml:"output_dir"`
	Headless           bool           `json:"headless" yaml:"headless"`
	Healing            *healing.Config `json:"healing,omitempty" yaml:"healing,omitempty"`
}

// ProgressUpdate is the sole channel by which a running session talks to its
// caller.
type ProgressUpdate struct {
	Phase    Phase          `json:"phase"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// ProgressFunc receives progress updates. Implementations must not block;
// the pipeline does not wait for listeners.
type ProgressFunc func(ProgressUpdate)

// PageElement is one interactable element found during discovery.
type PageElement struct {
	Type       string            `json:"type"`
	Selector   string            `json:"selector"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Visible    bool              `json:"visible"`
	Clickable  bool              `json:"clickable"`
}

// FormField describes one input of a discovered form.
type FormField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder,omitempty"`
	Selector    string `json:"selector"`
	Required    bool   `json:"required"`
}

// Form is a discovered form with enough structure to generate a submission
// test for it.
type Form struct {
	Selector       string      `json:"selector"`
	Action         string      `json:"action,omitempty"`
	Method         string      `json:"method,omitempty"`
	Fields         []FormField `json:"fields"`
	SubmitSelector string      `json:"submit_selector,omitempty"`
	IsRegistration bool        `json:"is_registration"`
	IsLogin        bool        `json:"is_login"`
}

// PageInfo is discovery's record of one crawled page.
type PageInfo struct {
	URL      string        `json:"url"`
	Title    string        `json:"title"`
	Depth    int           `json:"depth"`
	Elements []PageElement `json:"elements"`
	Forms    []Form        `json:"forms"`
	Links    []string      `json:"links"`
}

// APIEndpoint is a probed API route.
type APIEndpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`
}

// UserFlow is a navigation path worth exercising end to end.
type UserFlow struct {
	Name  string   `json:"name"`
	Pages []string `json:"pages"`
}

// ApplicationMap is the discovery phase's artifact, consumed read-only by
// generation.
type ApplicationMap struct {
	BaseURL      string        `json:"base_url"`
	Pages        []PageInfo    `json:"pages"`
	Flows        []UserFlow    `json:"flows"`
	APIEndpoints []APIEndpoint `json:"api_endpoints"`
}

// TestType tags what a generated test exercises.
type TestType string

const (
	TestNavigation TestType = "navigation"
	TestForm       TestType = "form"
	TestCRUD       TestType = "crud"
	TestRBAC       TestType = "rbac"
	TestAPI        TestType = "api"
)

// StepAction is the operation a test step performs.
type StepAction string

const (
	ActionNavigate   StepAction = "navigate"
	ActionClick      StepAction = "click"
	ActionFill       StepAction = "fill"
	ActionSelect     StepAction = "select"
	ActionAssertText StepAction = "assert_text"
	ActionAPIRequest StepAction = "api_request"
)

// TestStep is one operation of a generated test. Browser steps use Locator;
// API steps use Method/URL and a gojq expression asserted against the
// response body.
type TestStep struct {
	Action      StepAction             `json:"action"`
	Locator     string                 `json:"locator,omitempty"`
	LocatorType string                 `json:"locator_type,omitempty"`
	Value       string                 `json:"value,omitempty"`
	ObjectID    string                 `json:"object_id,omitempty"`
	Alternates  []healing.LocatorOption `json:"alternates,omitempty"`

	Method     string `json:"method,omitempty"`
	URL        string `json:"url,omitempty"`
	JQ         string `json:"jq,omitempty"`
	Expected   string `json:"expected,omitempty"`
	WantStatus int    `json:"want_status,omitempty"`
}

// GeneratedTest is the generation phase's unit of work.
type GeneratedTest struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Type              TestType      `json:"type"`
	Priority          int           `json:"priority"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	PageURL           string        `json:"page_url,omitempty"`
	Steps             []TestStep    `json:"steps"`
}

// TestStatus is the outcome of one executed test. A test whose failing step
// healed and then passed on retry is healed, not passed.
type TestStatus string

const (
	StatusPassed TestStatus = "passed"
	StatusFailed TestStatus = "failed"
	StatusHealed TestStatus = "healed"
)

// StepResult records one executed step.
type StepResult struct {
	Index          int        `json:"index"`
	Action         StepAction `json:"action"`
	Status         TestStatus `json:"status"`
	Error          string     `json:"error,omitempty"`
	HealedLocator  string     `json:"healed_locator,omitempty"`
	ScreenshotPath string     `json:"screenshot_path,omitempty"`
}

// TestResult is one executed test.
type TestResult struct {
	TestID      string        `json:"test_id"`
	Name        string        `json:"name"`
	Type        TestType      `json:"type"`
	Status      TestStatus    `json:"status"`
	Duration    time.Duration `json:"duration"`
	Steps       []StepResult  `json:"steps"`
	VisitedURLs []string      `json:"visited_urls,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// ExecutionResults is the execution phase's artifact.
type ExecutionResults struct {
	Results  []TestResult  `json:"results"`
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Healed   int           `json:"healed"`
	Duration time.Duration `json:"duration"`
}

// Finding is the analysis phase's classification of one failed or healed
// test.
type Finding struct {
	TestID       string  `json:"test_id"`
	Category     string  `json:"category"`
	RootCause    string  `json:"root_cause"`
	SuggestedFix string  `json:"suggested_fix"`
	Confidence   float64 `json:"confidence"`
}

// AnalysisResult is the analysis phase's artifact. Unanalyzed counts tests
// the collaborator could not classify; analysis errors never fail the phase.
type AnalysisResult struct {
	Findings   []Finding `json:"findings"`
	Unanalyzed int       `json:"unanalyzed"`
}

// ReportSummary is the headline numbers of a finished session.
type ReportSummary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Healed   int           `json:"healed"`
	Duration time.Duration `json:"duration"`
	Coverage float64       `json:"coverage"`
}

// CoveragePercent is Coverage scaled for display.
func (s ReportSummary) CoveragePercent() float64 {
	return s.Coverage * 100
}

// Report is the final artifact of a session.
type Report struct {
	SessionID   string          `json:"session_id"`
	TargetURL   string          `json:"target_url"`
	Depth       Depth           `json:"depth"`
	Summary     ReportSummary   `json:"summary"`
	Tests       []TestResult    `json:"tests"`
	Analysis    *AnalysisResult `json:"analysis,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
	JSONPath    string          `json:"json_path,omitempty"`
	HTMLPath    string          `json:"html_path,omitempty"`
}
