package detect

const CheckErrorIntrospection = "error_introspection"

// FamilyCheckID names the identity/feature mismatch check for one family.
func FamilyCheckID(family string) string {
	return "family_mismatch_" + family
}

// SuspicionAssessment counts the consistency checks run and how many failed.
type SuspicionAssessment struct {
	Checked    int      `json:"checkedCount"`
	Suspicious int      `json:"suspiciousCount"`
	Findings   []string `json:"findings,omitempty"`
}

// Ratio is Suspicious/Checked, 0 when nothing was checked.
func (a SuspicionAssessment) Ratio() float64 {
	if a.Checked == 0 {
		return 0
	}
	return float64(a.Suspicious) / float64(a.Checked)
}

func (a SuspicionAssessment) TooSuspicious(cutoff float64) bool {
	return a.Checked > 0 && a.Ratio() > cutoff
}

func (a *SuspicionAssessment) record(id string, suspicious bool) {
	a.Checked++
	if suspicious {
		a.Suspicious++
		a.Findings = append(a.Findings, id)
	}
}

// EvaluateSuspicion runs the environment-consistency checks. A family check only
// runs when the user agent declares that family; the error check only runs when
// the sensor reported its probe.
func EvaluateSuspicion(env Environment, p Policy) SuspicionAssessment {
	var a SuspicionAssessment
	id := parseIdentity(env.UserAgent)

	for _, f := range KnownFamilies() {
		check := FamilyCheckID(f.Name)
		if !p.enabled(check) || !id.declares(f) {
			continue
		}
		a.record(check, !env.hasMarker(f))
	}

	if p.enabled(CheckErrorIntrospection) && env.ErrorProbe != nil {
		tampered := !env.ErrorProbe.HasStack || env.ErrorProbe.StackType != "string"
		a.record(CheckErrorIntrospection, tampered)
	}
	return a
}
