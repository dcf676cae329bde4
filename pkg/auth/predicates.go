package auth

import "strings"

// URL fragments observed in the Amazon login flow. The site offers no
// authentication-complete callback, so these substring checks on the
// current URL are the only available completion signal.
const (
	loginPathMarker  = "ap/signin"
	mfaPathMarker    = "ap/mfa"
	dashboardMarker  = "parentdashboard"
)

// OnLoginPath reports whether the URL is inside the sign-in or
// second-factor flow.
func OnLoginPath(url string) bool {
	return strings.Contains(url, loginPathMarker) || strings.Contains(url, mfaPathMarker)
}

// OnDashboard reports whether the URL is inside the parent dashboard.
func OnDashboard(url string) bool {
	return strings.Contains(url, dashboardMarker)
}
