package decision_test

import (
	"context"
	"testing"
	"time"

	"riskgate/internal/decision"
	"riskgate/internal/detect"
	"riskgate/internal/fingerprint"
	"riskgate/internal/geo"
	"riskgate/internal/ledger"
	"riskgate/internal/logger"
	"riskgate/internal/signals"
	"riskgate/internal/store"
	"riskgate/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func newEngine(t *testing.T, blocked ...string) (*decision.Engine, *ledger.Ledger) {
	t.Helper()
	list, err := ledger.NewIPBlocklist(blocked)
	require.NoError(t, err)

	l := ledger.New(store.NewMemoryStore(), ledger.Options{BlockedIPs: list, Logger: logger.Discard()})
	e := decision.NewEngine(l, decision.Options{
		Settings: decision.Settings{
			AutomationThreshold: 3,
			SuspicionCutoff:     0.3,
			KnownBotTokens:      []string{"bot", "crawler", "spider", "curl", "python"},
			SecurityTools:       []string{"sqlmap", "nikto"},
			BannedCountries:     []string{"KP"},
		},
		Policy:  detect.DefaultPolicy(),
		Locator: geo.Static{"198.51.100.9": "KP"},
		Logger:  logger.Discard(),
	})
	return e, l
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func humanReport() *types.Report {
	return &types.Report{
		UserAgent:   chromeUA,
		Language:    "en-US",
		Languages:   []string{"en-US", "en"},
		Platform:    "Win32",
		PluginCount: intPtr(5),
		Features:    map[string]bool{"chrome": true},
		ErrorProbe:  &types.ErrorProbe{HasStack: true, StackType: "string"},
	}
}

func humanContext() decision.Context {
	r := humanReport()
	return decision.Context{
		IP:        "203.0.113.10",
		UserAgent: r.UserAgent,
		Report:    r,
		Signals: signals.Signals{
			signals.UserAgent: r.UserAgent,
			signals.Language:  r.Language,
			signals.Platform:  r.Platform,
			signals.Screen:    map[string]any{"width": 1920, "height": 1080},
		},
	}
}

func TestEvaluateClient_AdmitsHuman(t *testing.T) {
	e, _ := newEngine(t)
	v := e.EvaluateClient(context.Background(), humanContext())

	assert.True(t, v.Admit)
	assert.Empty(t, v.Reason)
	assert.Zero(t, v.Confidence)
	assert.Len(t, v.ClientID, 16)
	assert.Equal(t, fingerprint.Strong, v.Mode)
	assert.NotEmpty(t, v.ID)
}

func TestEvaluateClient_BlacklistedAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t)
	c := humanContext()
	id := fingerprint.ClientID(c.Signals)

	for i := 0; i < 3; i++ {
		l.RecordFailure(ctx, id, "x")
	}

	v := e.EvaluateClient(ctx, c)
	assert.False(t, v.Admit)
	assert.Equal(t, decision.ReasonBlacklisted, v.Reason)
	assert.Equal(t, 0.9, v.Confidence)
}

func TestEvaluateClient_Order(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *decision.Context)
		reason     string
		confidence float64
		recorded   bool
	}{
		{
			name:       "static ip",
			mutate:     func(c *decision.Context) { c.IP = "104.164.173.50" },
			reason:     decision.ReasonBlockedIP,
			confidence: 0.9,
		},
		{
			name:       "banned country supplied",
			mutate:     func(c *decision.Context) { c.Country = "kp" },
			reason:     decision.ReasonBlockedRegion,
			confidence: 0.9,
		},
		{
			name:       "banned country looked up",
			mutate:     func(c *decision.Context) { c.IP = "198.51.100.9" },
			reason:     decision.ReasonBlockedRegion,
			confidence: 0.9,
		},
		{
			name:       "known bot",
			mutate:     func(c *decision.Context) { c.UserAgent = "SuperBot/1.0 web crawler" },
			reason:     decision.ReasonKnownBot,
			confidence: 0.9,
			recorded:   true,
		},
		{
			name:       "security tool",
			mutate:     func(c *decision.Context) { c.UserAgent = "sqlmap/1.7" },
			reason:     decision.ReasonSecurityTool,
			confidence: 0.9,
			recorded:   true,
		},
		{
			name:       "challenge failed",
			mutate:     func(c *decision.Context) { c.Challenge = boolPtr(false) },
			reason:     decision.ReasonChallengeFailed,
			confidence: 0.8,
			recorded:   true,
		},
		{
			name:       "automation",
			mutate:     func(c *decision.Context) { c.Report.Webdriver = true },
			reason:     decision.ReasonAutomation,
			confidence: 0.5,
			recorded:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e, l := newEngine(t, "104.164.173.0/24")
			c := humanContext()
			tt.mutate(&c)

			v := e.EvaluateClient(ctx, c)
			assert.False(t, v.Admit)
			assert.Equal(t, tt.reason, v.Reason)
			assert.InDelta(t, tt.confidence, v.Confidence, 1e-9)
			if tt.recorded {
				assert.Len(t, l.Failures(ctx), 1)
			} else {
				assert.Empty(t, l.Failures(ctx))
			}
		})
	}
}

func TestEvaluateClient_SingleBotTokenIsNotEnough(t *testing.T) {
	e, _ := newEngine(t)
	c := humanContext()
	c.UserAgent = "curl/8.4.0"
	v := e.EvaluateClient(context.Background(), c)
	assert.NotEqual(t, decision.ReasonKnownBot, v.Reason)
}

func TestEvaluateClient_AutomationConfidenceCapped(t *testing.T) {
	e, _ := newEngine(t)
	c := humanContext()
	c.Report.Webdriver = true
	c.Report.Globals = []string{"callPhantom"}
	c.Report.RootAttributes = []string{"selenium"}

	v := e.EvaluateClient(context.Background(), c)
	assert.Equal(t, decision.ReasonAutomation, v.Reason)
	assert.Equal(t, 1.0, v.Confidence)
	assert.GreaterOrEqual(t, v.Scores.Automation, 9.0)
}

func TestEvaluateClient_SuspiciousEscalates(t *testing.T) {
	ctx := context.Background()
	e, l := newEngine(t)
	c := humanContext()
	c.Report.Features = map[string]bool{}

	v := e.EvaluateClient(ctx, c)
	assert.False(t, v.Admit)
	assert.True(t, v.Escalate)
	assert.Equal(t, decision.ReasonSuspicious, v.Reason)
	assert.InDelta(t, 0.5, v.Confidence, 1e-9)
	assert.Len(t, l.Failures(ctx), 1)

	c.Challenge = boolPtr(true)
	v = e.EvaluateClient(ctx, c)
	assert.True(t, v.Admit)
	assert.False(t, v.Escalate)
}

func TestEvaluateClient_FailsOpen(t *testing.T) {
	e, _ := newEngine(t)

	v := e.EvaluateClient(context.Background(), decision.Context{IP: "203.0.113.10"})
	assert.True(t, v.Admit)
	assert.Equal(t, decision.ReasonIncomplete, v.Reason)

	broken := decision.NewEngine(nil, decision.Options{Logger: logger.Discard()})
	v = broken.EvaluateClient(context.Background(), humanContext())
	assert.True(t, v.Admit)
	assert.Equal(t, decision.ReasonIncomplete, v.Reason)
}

func TestEvaluateClient_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	l := ledger.New(store.NewMemoryStore(), ledger.Options{Now: clock, Logger: logger.Discard()})
	e := decision.NewEngine(l, decision.Options{Policy: detect.DefaultPolicy(), Logger: logger.Discard()})

	c := humanContext()
	for i := 0; i < 3; i++ {
		l.RecordFailure(ctx, fingerprint.ClientID(c.Signals), "x")
	}
	assert.Equal(t, decision.ReasonBlacklisted, e.EvaluateClient(ctx, c).Reason)

	now = now.Add(25 * time.Hour)
	assert.True(t, e.EvaluateClient(ctx, c).Admit)
}
