package models

// Step names, in chain order.
const (
	StepAudience    = "audience"
	StepStrategy    = "strategy"
	StepContentPlan = "content_plan"
	StepLandingPage = "landing_page"
	StepEventPromo  = "event_promo"
)

// Step is the static definition of one stage of the generation chain.
type Step struct {
	Name      string
	DependsOn string // empty for the first step
	Optional  bool   // gated by Inputs.GenerateLandingPage and the event fields

	// Markers are the top-level fields a normalized payload for this step is
	// expected to carry. The payload normalizer stops unwrapping as soon as
	// any of them is present.
	Markers []string
}

// chain is the fixed step graph: a strict linear chain with two optional
// trailing steps.
var chain = []Step{
	{Name: StepAudience, Markers: []string{"segments", "personas", "pain_points"}},
	{Name: StepStrategy, DependsOn: StepAudience, Markers: []string{"positioning", "channels", "tone"}},
	{Name: StepContentPlan, DependsOn: StepStrategy, Markers: []string{"milestone", "persona", "topics"}},
	{Name: StepLandingPage, DependsOn: StepContentPlan, Optional: true, Markers: []string{"headline", "sections", "cta"}},
	{Name: StepEventPromo, DependsOn: StepLandingPage, Optional: true, Markers: []string{"event", "schedule", "invites"}},
}

// Chain returns the five pipeline steps in dependency order.
func Chain() []Step {
	out := make([]Step, len(chain))
	copy(out, chain)

	return out
}

// StepByName looks a step definition up by name.
func StepByName(name string) (Step, bool) {
	for _, step := range chain {
		if step.Name == name {
			return step, true
		}
	}

	return Step{}, false
}

// DependentOf returns the direct downstream dependent of the named step, if
// any. The chain is linear, so there is at most one.
func DependentOf(name string) (Step, bool) {
	for _, step := range chain {
		if step.DependsOn == name {
			return step, true
		}
	}

	return Step{}, false
}
