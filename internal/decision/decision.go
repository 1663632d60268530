package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"riskgate/internal/config"
	"riskgate/internal/detect"
	"riskgate/internal/fingerprint"
	"riskgate/internal/geo"
	"riskgate/internal/ledger"
	"riskgate/internal/metrics"
	"riskgate/internal/signals"
	"riskgate/internal/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ReasonBlockedIP       = "blocked_ip"
	ReasonBlockedRegion   = "blocked_region"
	ReasonKnownBot        = "known_bot"
	ReasonSecurityTool    = "security_tool"
	ReasonBlacklisted     = "blacklisted"
	ReasonChallengeFailed = "challenge_failed"
	ReasonAutomation      = "automation_detected"
	ReasonSuspicious      = "suspicious_environment"
	ReasonIncomplete      = "evaluation_incomplete"

	// metrics label for plain admits
	reasonAdmit = "admit"
)

// Context is everything known about one client at evaluation time.
type Context struct {
	IP        string
	UserAgent string
	// Country is an ISO code supplied by the caller; looked up when empty.
	Country string
	Signals signals.Signals
	Report  *types.Report
	// Challenge is the human-verification result, nil when none was run.
	Challenge *bool
}

type Scores struct {
	Automation      float64  `json:"automation"`
	SuspicionRatio  float64  `json:"suspicionRatio"`
	SuspicionChecks int      `json:"suspicionChecks"`
	Triggered       []string `json:"triggered,omitempty"`
	Findings        []string `json:"findings,omitempty"`
}

type Verdict struct {
	ID         string           `json:"id"`
	Admit      bool             `json:"admit"`
	Reason     string           `json:"reason,omitempty"`
	Confidence float64          `json:"confidence"`
	Escalate   bool             `json:"escalate,omitempty"`
	ClientID   string           `json:"clientId,omitempty"`
	Digest     string           `json:"fingerprint,omitempty"`
	Mode       fingerprint.Mode `json:"mode,omitempty"`
	Scores     Scores           `json:"scores"`
}

// Settings are the decision thresholds. A zero threshold or cutoff means unset and
// takes the default; config validation rejects explicit zeros.
type Settings struct {
	AutomationThreshold float64
	SuspicionCutoff     float64
	KnownBotTokens      []string
	SecurityTools       []string
	BannedCountries     []string
}

// SettingsFromConfig copies the detection thresholds and token lists from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		AutomationThreshold: cfg.Detection.AutomationThreshold,
		SuspicionCutoff:     cfg.Detection.SuspicionCutoff,
		KnownBotTokens:      cfg.Detection.KnownBotTokens,
		SecurityTools:       cfg.Detection.SecurityTools,
		BannedCountries:     cfg.BannedGeoLocations,
	}
}

type Options struct {
	Settings Settings
	Policy   detect.Policy
	Builder  *fingerprint.Builder
	Locator  geo.Locator
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
}

// Engine composes fingerprinting, the detectors and the ledger into verdicts.
type Engine struct {
	ledger   *ledger.Ledger
	settings Settings
	policy   detect.Policy
	builder  *fingerprint.Builder
	locator  geo.Locator
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

func NewEngine(l *ledger.Ledger, opts Options) *Engine {
	e := &Engine{
		ledger:   l,
		settings: opts.Settings,
		policy:   opts.Policy,
		builder:  opts.Builder,
		locator:  opts.Locator,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if e.builder == nil {
		e.builder = fingerprint.NewBuilder()
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.settings.AutomationThreshold <= 0 {
		e.settings.AutomationThreshold = 3
	}
	if e.settings.SuspicionCutoff <= 0 {
		e.settings.SuspicionCutoff = 0.3
	}
	return e
}

func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// EvaluateClient returns the verdict for c. It never fails: any internal fault
// admits the client.
func (e *Engine) EvaluateClient(ctx context.Context, c Context) (v Verdict) {
	start := time.Now()
	id := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"evaluation_id": id,
				"ip":            c.IP,
				"panic":         fmt.Sprint(r),
			}).Error("Evaluation panicked, admitting client")
			v = Verdict{ID: id, Admit: true, Reason: ReasonIncomplete}
		}
		e.metrics.ObserveEvaluation(time.Since(start))
		if v.Admit && v.Reason == "" {
			e.metrics.Verdict(reasonAdmit)
		} else {
			e.metrics.Verdict(v.Reason)
		}
	}()

	v = e.evaluate(ctx, c)
	v.ID = id
	e.log(c, v)
	return v
}

func (e *Engine) evaluate(ctx context.Context, c Context) Verdict {
	fp := e.builder.Build(c.Signals)
	clientID := fingerprint.ClientID(c.Signals)
	base := Verdict{ClientID: clientID, Digest: fp.Digest, Mode: fp.Mode}

	deny := func(reason string, confidence float64, record bool) Verdict {
		if record {
			e.ledger.RecordFailure(ctx, clientID, reason)
		}
		base.Reason = reason
		base.Confidence = confidence
		return base
	}

	if e.ledger.IsIPBlocked(c.IP) {
		return deny(ReasonBlockedIP, 0.9, false)
	}
	if geo.Banned(e.country(c), e.settings.BannedCountries) {
		return deny(ReasonBlockedRegion, 0.9, false)
	}

	ua := c.UserAgent
	if ua == "" && c.Report != nil {
		ua = c.Report.UserAgent
	}
	if len(matchTokens(ua, e.settings.KnownBotTokens)) >= 2 {
		return deny(ReasonKnownBot, 0.9, true)
	}
	if len(matchTokens(ua, e.settings.SecurityTools)) > 0 {
		return deny(ReasonSecurityTool, 0.9, true)
	}

	if clientID == "" {
		base.Admit = true
		base.Reason = ReasonIncomplete
		return base
	}
	if e.ledger.IsBlacklisted(ctx, clientID) || (fp.Digest != "" && e.ledger.IsBlacklisted(ctx, fp.Digest)) {
		return deny(ReasonBlacklisted, 0.9, false)
	}

	if c.Challenge != nil && !*c.Challenge {
		return deny(ReasonChallengeFailed, 0.8, true)
	}

	env := detect.FromReport(c.Report)
	if env.UserAgent == "" {
		env.UserAgent = ua
	}
	automation := detect.DetectAutomation(env, e.policy)
	suspicion := detect.EvaluateSuspicion(env, e.policy)
	base.Scores = Scores{
		Automation:      automation.Score,
		SuspicionRatio:  suspicion.Ratio(),
		SuspicionChecks: suspicion.Checked,
		Triggered:       automation.Triggered(),
		Findings:        suspicion.Findings,
	}

	if automation.Score >= e.settings.AutomationThreshold {
		return deny(ReasonAutomation, math.Min(1, automation.Score/6), true)
	}
	if suspicion.TooSuspicious(e.settings.SuspicionCutoff) {
		if c.Challenge != nil && *c.Challenge {
			base.Admit = true
			return base
		}
		v := deny(ReasonSuspicious, suspicion.Ratio(), true)
		v.Escalate = true
		return v
	}

	base.Admit = true
	return base
}

func (e *Engine) country(c Context) string {
	if c.Country != "" || e.locator == nil || c.IP == "" {
		return c.Country
	}
	code, err := e.locator.Country(c.IP)
	if err != nil {
		e.logger.WithError(err).WithField("ip", c.IP).Debug("Country lookup failed")
		return ""
	}
	return code
}

func (e *Engine) log(c Context, v Verdict) {
	fields := logrus.Fields{
		"evaluation_id": v.ID,
		"ip":            c.IP,
		"client_id":     v.ClientID,
		"admit":         v.Admit,
		"reason":        v.Reason,
		"confidence":    v.Confidence,
	}
	if v.Admit {
		e.logger.WithFields(fields).Debug("Client evaluated")
		return
	}
	fields["automation_score"] = v.Scores.Automation
	fields["suspicion_ratio"] = v.Scores.SuspicionRatio
	e.logger.WithFields(fields).Info("Client denied")
}
