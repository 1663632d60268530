package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"riskgate/internal/types"

	"github.com/mitchellh/mapstructure"
)

// Collector names. The fingerprint builder relies on these keys.
const (
	UserAgent           = "user_agent"
	Language            = "language"
	Languages           = "languages"
	Platform            = "platform"
	Screen              = "screen"
	TimezoneOffset      = "timezone_offset"
	HardwareConcurrency = "hardware_concurrency"
	DeviceMemory        = "device_memory"
	Storage             = "storage"
	Codecs              = "codecs"
	Fonts               = "fonts"
	Canvas              = "canvas"
	WebGL               = "webgl"
	Battery             = "battery"
	Connection          = "connection"
	Plugins             = "plugins"
	Touch               = "touch"
	Behavior            = "behavior"
)

var errNotReported = errors.New("signal not reported")

// DecodeReport converts the loosely typed sensor payload into a Report. Numbers sent
// as strings and similar client quirks are tolerated.
func DecodeReport(raw map[string]interface{}) (*types.Report, error) {
	var report types.Report
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &report,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// ReportCollectors returns one collector per signal extracted from the report.
func ReportCollectors(r *types.Report) []Collector {
	return []Collector{
		Static(UserAgent, func() (any, error) { return nonEmpty(r.UserAgent) }),
		Static(Language, func() (any, error) { return nonEmpty(r.Language) }),
		Static(Languages, func() (any, error) {
			if len(r.Languages) == 0 {
				return nil, errNotReported
			}
			return strings.Join(r.Languages, ","), nil
		}),
		Static(Platform, func() (any, error) { return nonEmpty(r.Platform) }),
		Static(Screen, func() (any, error) {
			if r.Screen == nil {
				return nil, errNotReported
			}
			return map[string]any{
				"width":      r.Screen.Width,
				"height":     r.Screen.Height,
				"colorDepth": r.Screen.ColorDepth,
				"pixelRatio": r.Screen.PixelRatio,
			}, nil
		}),
		Static(TimezoneOffset, func() (any, error) {
			if r.TimezoneOffset == nil {
				return nil, errNotReported
			}
			return *r.TimezoneOffset, nil
		}),
		Static(HardwareConcurrency, func() (any, error) { return positive(float64(r.HardwareConcurrency)) }),
		Static(DeviceMemory, func() (any, error) { return positive(r.DeviceMemory) }),
		Static(Storage, func() (any, error) {
			if r.Storage == nil {
				return nil, errNotReported
			}
			return map[string]any{
				"localStorage":   r.Storage.LocalStorage,
				"sessionStorage": r.Storage.SessionStorage,
				"indexedDB":      r.Storage.IndexedDB,
				"cookies":        r.Storage.Cookies,
			}, nil
		}),
		Static(Codecs, func() (any, error) { return supportedCodecs(r.Codecs) }),
		Static(Fonts, func() (any, error) { return detectedFonts(r.Fonts) }),
		Static(Canvas, func() (any, error) { return CanvasChecksum(r.Canvas) }),
		Static(WebGL, func() (any, error) {
			if r.WebGL == nil || !r.WebGL.Supported {
				return nil, errNotReported
			}
			return map[string]any{
				"vendor":     r.WebGL.Vendor,
				"renderer":   r.WebGL.Renderer,
				"parameters": r.WebGL.Parameters,
			}, nil
		}),
		Static(Battery, func() (any, error) {
			if r.Battery == nil || !r.Battery.Supported {
				return nil, errNotReported
			}
			return map[string]any{"level": r.Battery.Level, "charging": r.Battery.Charging}, nil
		}),
		Static(Connection, func() (any, error) {
			if r.Connection == nil {
				return nil, errNotReported
			}
			return map[string]any{
				"effectiveType": r.Connection.EffectiveType,
				"downlink":      r.Connection.Downlink,
				"rtt":           r.Connection.RTT,
				"saveData":      r.Connection.SaveData,
			}, nil
		}),
		Static(Plugins, func() (any, error) { return PluginCount(r), nil }),
		Static(Touch, func() (any, error) { return r.MaxTouchPoints, nil }),
		Static(Behavior, func() (any, error) { return Summarize(r.Events).Map(), nil }),
	}
}

// CanvasChecksum hashes the rendered canvas data URL. Blocked canvases report an
// empty string or an error marker.
func CanvasChecksum(data string) (string, error) {
	if data == "" || strings.EqualFold(data, "error") || strings.HasPrefix(data, "Error") {
		return "", errNotReported
	}
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:]), nil
}

// PluginCount prefers the explicit count and falls back to the plugin name list.
func PluginCount(r *types.Report) int {
	if r.PluginCount != nil {
		return *r.PluginCount
	}
	return len(r.Plugins)
}

func nonEmpty(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errNotReported
	}
	return s, nil
}

func positive(v float64) (any, error) {
	if v <= 0 || math.IsNaN(v) {
		return nil, errNotReported
	}
	return v, nil
}

func supportedCodecs(codecs map[string]string) (any, error) {
	if len(codecs) == 0 {
		return nil, errNotReported
	}
	out := make(map[string]bool, len(codecs))
	for codec, answer := range codecs {
		out[codec] = answer == "probably" || answer == "maybe"
	}
	return out, nil
}

func detectedFonts(m *types.FontMetrics) (any, error) {
	if m == nil || len(m.Widths) == 0 {
		return nil, errNotReported
	}
	var found []string
	for font, width := range m.Widths {
		if math.Abs(width-m.Baseline) > 0.01 {
			found = append(found, font)
		}
	}
	sort.Strings(found)
	return strings.Join(found, ","), nil
}
