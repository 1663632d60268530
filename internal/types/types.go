package types

// Report is what the sensor script posts. Pointer fields stay nil when the browser
// could not produce the value, so collectors can tell "absent" from "zero".
type Report struct {
	UserAgent           string            `mapstructure:"userAgent" json:"userAgent"`
	Language            string            `mapstructure:"language" json:"language"`
	Languages           []string          `mapstructure:"languages" json:"languages"`
	Platform            string            `mapstructure:"platform" json:"platform"`
	Screen              *Screen           `mapstructure:"screen" json:"screen,omitempty"`
	TimezoneOffset      *int              `mapstructure:"timezoneOffset" json:"timezoneOffset,omitempty"`
	HardwareConcurrency int               `mapstructure:"hardwareConcurrency" json:"hardwareConcurrency"`
	DeviceMemory        float64           `mapstructure:"deviceMemory" json:"deviceMemory"`
	Storage             *Storage          `mapstructure:"storage" json:"storage,omitempty"`
	Codecs              map[string]string `mapstructure:"codecs" json:"codecs,omitempty"`
	Fonts               *FontMetrics      `mapstructure:"fonts" json:"fonts,omitempty"`
	Canvas              string            `mapstructure:"canvas" json:"canvas"`
	WebGL               *WebGL            `mapstructure:"webgl" json:"webgl,omitempty"`
	Battery             *Battery          `mapstructure:"battery" json:"battery,omitempty"`
	Connection          *Connection       `mapstructure:"connection" json:"connection,omitempty"`
	Plugins             []string          `mapstructure:"plugins" json:"plugins"`
	PluginCount         *int              `mapstructure:"pluginCount" json:"pluginCount,omitempty"`
	MaxTouchPoints      int               `mapstructure:"maxTouchPoints" json:"maxTouchPoints"`
	Webdriver           bool              `mapstructure:"webdriver" json:"webdriver"`
	Globals             []string          `mapstructure:"globals" json:"globals"`
	RootAttributes      []string          `mapstructure:"rootAttributes" json:"rootAttributes"`
	Features            map[string]bool   `mapstructure:"features" json:"features"`
	ErrorProbe          *ErrorProbe       `mapstructure:"errorProbe" json:"errorProbe,omitempty"`
	Events              Events            `mapstructure:"events" json:"events"`
}

type Screen struct {
	Width      int     `mapstructure:"width" json:"width"`
	Height     int     `mapstructure:"height" json:"height"`
	ColorDepth int     `mapstructure:"colorDepth" json:"colorDepth"`
	PixelRatio float64 `mapstructure:"pixelRatio" json:"pixelRatio"`
}

type Storage struct {
	LocalStorage   bool `mapstructure:"localStorage" json:"localStorage"`
	SessionStorage bool `mapstructure:"sessionStorage" json:"sessionStorage"`
	IndexedDB      bool `mapstructure:"indexedDB" json:"indexedDB"`
	Cookies        bool `mapstructure:"cookies" json:"cookies"`
}

// FontMetrics holds rendered text widths per candidate font; a font counts as
// installed when its width differs from the fallback baseline.
type FontMetrics struct {
	Baseline float64            `mapstructure:"baseline" json:"baseline"`
	Widths   map[string]float64 `mapstructure:"widths" json:"widths"`
}

type WebGL struct {
	Supported  bool                   `mapstructure:"supported" json:"supported"`
	Vendor     string                 `mapstructure:"vendor" json:"vendor"`
	Renderer   string                 `mapstructure:"renderer" json:"renderer"`
	Parameters map[string]interface{} `mapstructure:"parameters" json:"parameters"`
}

type Battery struct {
	Supported bool    `mapstructure:"supported" json:"supported"`
	Level     float64 `mapstructure:"level" json:"level"`
	Charging  bool    `mapstructure:"charging" json:"charging"`
}

type Connection struct {
	EffectiveType string  `mapstructure:"effectiveType" json:"effectiveType"`
	Downlink      float64 `mapstructure:"downlink" json:"downlink"`
	RTT           float64 `mapstructure:"rtt" json:"rtt"`
	SaveData      bool    `mapstructure:"saveData" json:"saveData"`
}

// ErrorProbe describes a deliberately thrown error inspected in the page.
type ErrorProbe struct {
	HasStack  bool   `mapstructure:"hasStack" json:"hasStack"`
	StackType string `mapstructure:"stackType" json:"stackType"`
}

// Events carries event timestamps in milliseconds since page load.
type Events struct {
	Pointer  []float64 `mapstructure:"pointer" json:"pointer"`
	Keyboard []float64 `mapstructure:"keyboard" json:"keyboard"`
	Touch    []float64 `mapstructure:"touch" json:"touch"`
}
