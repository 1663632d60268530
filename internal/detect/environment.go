package detect

import (
	"strings"

	"riskgate/internal/config"
	"riskgate/internal/signals"
	"riskgate/internal/types"

	"github.com/avct/uasurfer"
)

// Environment is the detector view of a sensor report.
type Environment struct {
	UserAgent       string
	Platform        string
	Webdriver       bool
	Globals         []string
	RootAttributes  []string
	PluginCount     int
	PluginsReported bool
	Languages       []string
	Features        map[string]bool
	MaxTouchPoints  int
	ErrorProbe      *types.ErrorProbe
}

func FromReport(r *types.Report) Environment {
	if r == nil {
		return Environment{}
	}
	return Environment{
		UserAgent:       r.UserAgent,
		Platform:        r.Platform,
		Webdriver:       r.Webdriver,
		Globals:         r.Globals,
		RootAttributes:  r.RootAttributes,
		PluginCount:     signals.PluginCount(r),
		PluginsReported: r.PluginCount != nil || r.Plugins != nil,
		Languages:       r.Languages,
		Features:        r.Features,
		MaxTouchPoints:  r.MaxTouchPoints,
		ErrorProbe:      r.ErrorProbe,
	}
}

// Family is a browser family whose presence implies global feature markers.
type Family struct {
	Name    string
	Browser uasurfer.BrowserName
	Markers []string
}

// KnownFamilies lists the families checked for identity/feature consistency.
func KnownFamilies() []Family {
	return []Family{
		{Name: "chrome", Browser: uasurfer.BrowserChrome, Markers: []string{"chrome"}},
		{Name: "firefox", Browser: uasurfer.BrowserFirefox, Markers: []string{"InstallTrigger", "mozInnerScreenX"}},
		{Name: "safari", Browser: uasurfer.BrowserSafari, Markers: []string{"safari", "ApplePaySession"}},
	}
}

// identity caches the parsed user agent for one evaluation.
type identity struct {
	ua     *uasurfer.UserAgent
	lower  string
	mobile bool
}

func parseIdentity(userAgent string) identity {
	ua := uasurfer.Parse(userAgent)
	mobile := ua.DeviceType == uasurfer.DevicePhone || ua.DeviceType == uasurfer.DeviceTablet
	return identity{ua: ua, lower: strings.ToLower(userAgent), mobile: mobile}
}

func (id identity) declares(f Family) bool {
	return id.ua != nil && id.ua.Browser.Name == f.Browser
}

func (e Environment) hasMarker(f Family) bool {
	for _, m := range f.Markers {
		if e.Features[m] {
			return true
		}
	}
	return false
}

// Policy carries every tunable the detectors read. It is passed into each call.
type Policy struct {
	HeadlessTokens      []string
	AutomationGlobals   []string
	AutomationAttrs     []string
	ZeroPluginPlatforms []string
	Weights             map[string]float64
	DisabledChecks      map[string]bool
}

func PolicyFromConfig(cfg config.DetectionConfig) Policy {
	return Policy{
		HeadlessTokens:      cfg.HeadlessTokens,
		AutomationGlobals:   cfg.AutomationGlobals,
		AutomationAttrs:     cfg.AutomationAttrs,
		ZeroPluginPlatforms: cfg.ZeroPluginPlatform,
		DisabledChecks:      cfg.DisabledChecks,
		Weights:             cfg.Weights,
	}
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultConfig().Detection)
}

func (p Policy) enabled(id string) bool {
	return !p.DisabledChecks[id]
}

func (p Policy) weight(pr Predicate) float64 {
	if w, ok := p.Weights[pr.ID]; ok {
		return w
	}
	return pr.Weight
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
