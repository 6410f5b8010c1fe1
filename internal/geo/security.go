package geo

import (
	"strings"

	"github.com/ispfinder/ispfinder/internal/models"
)

const (
	warningTor    = "Tor network detected. Some features may be restricted."
	warningProxy  = "Proxy or VPN detected. Location may not be accurate."
	warningHigh   = "High threat level detected: "
	warningMedium = "Moderate security concern detected with your connection."
)

// IsSuspicious reports whether the connection is a proxy, a Tor exit or rated
// medium/high threat. Without a security assessment it is never suspicious.
func IsSuspicious(loc models.GeolocationData) bool {
	sec := loc.Security
	if sec == nil {
		return false
	}
	return sec.IsProxy || sec.IsTor ||
		sec.ThreatLevel == models.ThreatHigh || sec.ThreatLevel == models.ThreatMedium
}

// SecurityWarning returns the user-facing warning for the connection, or ""
// when none applies. Tor wins over proxy, which wins over threat level.
func SecurityWarning(loc models.GeolocationData) string {
	sec := loc.Security
	if sec == nil {
		return ""
	}

	switch {
	case sec.IsTor:
		return warningTor
	case sec.IsProxy:
		return warningProxy
	case sec.ThreatLevel == models.ThreatHigh:
		return warningHigh + strings.Join(sec.ThreatTypes, ", ")
	case sec.ThreatLevel == models.ThreatMedium:
		return warningMedium
	default:
		return ""
	}
}
