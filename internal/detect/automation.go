package detect

import (
	"sort"
	"strings"
)

type Tier int

const (
	// Primary predicates always run.
	Primary Tier = iota
	// Secondary predicates run only once the primary score is above zero, so
	// privacy-hardened browsers failing only these are not penalized.
	Secondary
)

const (
	PredWebdriver           = "webdriver"
	PredHeadlessUserAgent   = "headless_user_agent"
	PredAutomationGlobal    = "automation_global"
	PredAutomationAttribute = "automation_attribute"
	PredNoPlugins           = "no_plugins"
	PredNoLanguages         = "no_languages"
	PredMissingFamilyMarker = "missing_family_marker"
	PredMobileWithoutTouch  = "mobile_without_touch"
)

type Predicate struct {
	ID     string
	Weight float64
	Tier   Tier
	Eval   func(env Environment, id identity, p Policy) bool
}

// AutomationPredicates returns the predicate table in evaluation order.
func AutomationPredicates() []Predicate {
	return []Predicate{
		{ID: PredWebdriver, Weight: 3, Tier: Primary, Eval: func(env Environment, _ identity, _ Policy) bool {
			return env.Webdriver
		}},
		{ID: PredHeadlessUserAgent, Weight: 2, Tier: Primary, Eval: func(_ Environment, id identity, p Policy) bool {
			for _, token := range p.HeadlessTokens {
				if token != "" && strings.Contains(id.lower, strings.ToLower(token)) {
					return true
				}
			}
			return false
		}},
		{ID: PredAutomationGlobal, Weight: 3, Tier: Primary, Eval: func(env Environment, _ identity, p Policy) bool {
			for _, g := range env.Globals {
				// chromedriver injects $cdc_<random> / cdc_<random> globals
				if strings.HasPrefix(g, "cdc_") || strings.HasPrefix(g, "$cdc_") || containsFold(p.AutomationGlobals, g) {
					return true
				}
			}
			return false
		}},
		{ID: PredAutomationAttribute, Weight: 3, Tier: Primary, Eval: func(env Environment, _ identity, p Policy) bool {
			for _, attr := range env.RootAttributes {
				if containsFold(p.AutomationAttrs, attr) {
					return true
				}
			}
			return false
		}},
		{ID: PredNoPlugins, Weight: 0.5, Tier: Primary, Eval: func(env Environment, id identity, p Policy) bool {
			if !env.PluginsReported || env.PluginCount > 0 || id.mobile {
				return false
			}
			platform := strings.ToLower(env.Platform)
			for _, exempt := range p.ZeroPluginPlatforms {
				if exempt != "" && strings.HasPrefix(platform, strings.ToLower(exempt)) {
					return false
				}
			}
			return true
		}},
		{ID: PredNoLanguages, Weight: 0.5, Tier: Secondary, Eval: func(env Environment, _ identity, _ Policy) bool {
			return len(env.Languages) == 0
		}},
		{ID: PredMissingFamilyMarker, Weight: 1, Tier: Secondary, Eval: func(env Environment, id identity, _ Policy) bool {
			for _, f := range KnownFamilies() {
				if id.declares(f) && !env.hasMarker(f) {
					return true
				}
			}
			return false
		}},
		{ID: PredMobileWithoutTouch, Weight: 0.5, Tier: Secondary, Eval: func(env Environment, id identity, _ Policy) bool {
			return id.mobile && env.MaxTouchPoints == 0
		}},
	}
}

// AutomationAssessment records each predicate outcome and the accumulated score.
// The score is unbounded; thresholds belong to the caller.
type AutomationAssessment struct {
	Predicates map[string]bool `json:"predicates"`
	Score      float64         `json:"automationScore"`
}

// Triggered lists the predicates that evaluated true, sorted.
func (a AutomationAssessment) Triggered() []string {
	var out []string
	for id, hit := range a.Predicates {
		if hit {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func DetectAutomation(env Environment, p Policy) AutomationAssessment {
	id := parseIdentity(env.UserAgent)
	table := AutomationPredicates()
	result := AutomationAssessment{Predicates: make(map[string]bool, len(table))}

	var primary float64
	for _, pr := range table {
		if pr.Tier != Primary || !p.enabled(pr.ID) {
			continue
		}
		hit := pr.Eval(env, id, p)
		result.Predicates[pr.ID] = hit
		if hit {
			primary += p.weight(pr)
		}
	}
	result.Score = primary
	if primary <= 0 {
		return result
	}

	for _, pr := range table {
		if pr.Tier != Secondary || !p.enabled(pr.ID) {
			continue
		}
		hit := pr.Eval(env, id, p)
		result.Predicates[pr.ID] = hit
		if hit {
			result.Score += p.weight(pr)
		}
	}
	return result
}
