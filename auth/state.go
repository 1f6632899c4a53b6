package auth

// State is where the client is in the token lifecycle.
type State int

// The lifecycle runs Unauthenticated, AwaitingApproval, Authenticated, and
// Expired back to Authenticated on refresh, ending in LoggedOut.
const (
	// Unauthenticated: no token set is stored.
	Unauthenticated State = iota
	// AwaitingApproval: tokens were issued but the user still has to allow
	// access in the Monzo app (Strong Customer Authentication).
	AwaitingApproval
	// Authenticated: the access token is believed to work.
	Authenticated
	// Expired: the access token failed or is past its expiry.
	Expired
	// LoggedOut: tokens were revoked and cleared.
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingApproval:
		return "awaiting_approval"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	case LoggedOut:
		return "logged_out"
	}
	return "unknown"
}
