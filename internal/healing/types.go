package healing

import "fmt"

// LocatorType identifies how a locator value should be interpreted when
// resolving an element on the page.
type LocatorType string

const (
	LocatorID        LocatorType = "id"
	LocatorCSS       LocatorType = "css"
	LocatorXPath     LocatorType = "xpath"
	LocatorText      LocatorType = "text"
	LocatorRole      LocatorType = "role"
	LocatorTestID    LocatorType = "testId"
	LocatorAriaLabel LocatorType = "ariaLabel"
)

// LocatorOption is one known way to find an element. Objects typically carry
// several, tried in priority order (lower = tried first).
type LocatorOption struct {
	Type        LocatorType `json:"type" yaml:"type"`
	Value       string      `json:"value" yaml:"value"`
	Priority    int         `json:"priority" yaml:"priority"`
	SuccessRate *float64    `json:"success_rate,omitempty" yaml:"success_rate,omitempty"`
}

// StrategyName identifies one healing heuristic.
type StrategyName string

const (
	StrategyFallback   StrategyName = "FALLBACK"
	StrategySimilarity StrategyName = "SIMILARITY"
	StrategyVisual     StrategyName = "VISUAL"
	StrategyHistorical StrategyName = "HISTORICAL"
)

// strategyOrder is the fixed tie-break and invocation order: cheapest and
// most reliable first.
var strategyOrder = map[StrategyName]int{
	StrategyFallback:   0,
	StrategySimilarity: 1,
	StrategyVisual:     2,
	StrategyHistorical: 3,
}

// Context is the immutable input to one healing attempt. It describes the
// step whose locator stopped matching.
type Context struct {
	FailedLocator             string
	ObjectID                  string
	StepIndex                 int
	TestCaseID                string
	TestResultID              string
	PageSnapshot              string
	ErrorMessage              string
	PreviousSuccessfulLocator string

	// AlternateLocators are the object's known fallback locators, when the
	// object repository has them.
	AlternateLocators []LocatorOption
}

// Result is one strategy's proposed replacement locator.
type Result struct {
	Strategy   StrategyName
	NewLocator string
	Confidence float64
	Metadata   map[string]any

	// AutoApplied and Approved are set by the coordinator when the result is
	// classified, not by strategies.
	AutoApplied bool
	Approved    *bool
}

// FailureReason classifies why a healing attempt produced no usable locator.
type FailureReason string

const (
	ReasonDisabled    FailureReason = "disabled"
	ReasonNoCandidate FailureReason = "no_candidate"
	ReasonTimeout     FailureReason = "timeout"
)

// Failure is returned by the coordinator when no replacement locator could be
// applied or suggested. It is a normal failed-step outcome, not a panic-worthy
// condition.
type Failure struct {
	Reason FailureReason
}

func (f *Failure) Error() string {
	return fmt.Sprintf("healing failed: %s", f.Reason)
}

// AsFailure unwraps err into a *Failure if it is one.
func AsFailure(err error) (*Failure, bool) {
	f, ok := err.(*Failure)
	return f, ok
}
