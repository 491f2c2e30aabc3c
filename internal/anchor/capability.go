package anchor

import "strings"

// Capabilities describes how the rendering engine handles selections.
type Capabilities struct {
	Engine string
	// RepositionMarker is false for engines that extend multi-range selections
	// natively (Firefox-class); the end marker is left alone there.
	RepositionMarker bool
}

// Engine names reported by DetectCapabilities.
const (
	EngineGecko   = "gecko"
	EngineBlink   = "blink"
	EngineWebKit  = "webkit"
	EngineUnknown = "unknown"
)

// DetectCapabilities classifies a user agent once. The result is injected into
// a Resolver instead of re-checking the engine on every selection event.
func DetectCapabilities(userAgent string) Capabilities {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "gecko/"):
		return Capabilities{Engine: EngineGecko, RepositionMarker: false}
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "chromium/") || strings.Contains(ua, "edg/"):
		return Capabilities{Engine: EngineBlink, RepositionMarker: true}
	case strings.Contains(ua, "applewebkit/"):
		return Capabilities{Engine: EngineWebKit, RepositionMarker: true}
	default:
		return Capabilities{Engine: EngineUnknown, RepositionMarker: true}
	}
}
