package auth

import (
	"context"
	"errors"
	"fmt"
)

// Policy controls what Ensure does when stored tokens stop working.
type Policy struct {
	// MaxRefreshAttempts is how many refresh-then-test rounds to try.
	MaxRefreshAttempts int
	// ReauthOnRefreshFailure re-runs the interactive flow once refreshing
	// has failed instead of giving up.
	ReauthOnRefreshFailure bool
}

// DefaultPolicy refreshes once and never re-enters the interactive flow.
var DefaultPolicy = Policy{MaxRefreshAttempts: 1}

// ReceiverFunc builds the callback receiver for an interactive flow. It is
// only called when one is needed, so nothing listens on the redirect URI
// while stored tokens are still good.
type ReceiverFunc func() (CallbackReceiver, error)

// Ensure leaves the client with a working access token. Without stored
// tokens it runs the interactive flow; with them it tests the access token
// and, following the policy, refreshes it.
func (c *Client) Ensure(ctx context.Context, newReceiver ReceiverFunc) error {
	if c.TokenSet() == nil {
		c.logger.Info("authentication is needed to set config variables")
		return c.authorize(ctx, newReceiver)
	}

	if c.State() == Expired {
		c.logger.Info("stored access token has expired")
	} else {
		c.logger.Info("access and refresh tokens exist, testing API call")
		ok, err := c.TestAPICall(ctx)
		if ok {
			c.logger.Info("API test call successful")
			return nil
		}
		c.logger.Warn("API test call failed", "error", err)
		c.setState(Expired)
	}

	lastErr := errors.New("API test call failed and refreshing is disabled")
	for attempt := 1; attempt <= c.policy.MaxRefreshAttempts; attempt++ {
		c.logger.Info("refreshing access token", "attempt", attempt)
		if err := c.RefreshAccessToken(ctx); err != nil {
			lastErr = err
			continue
		}
		ok, err := c.TestAPICall(ctx)
		if ok {
			c.logger.Info("API test call successful")
			return nil
		}
		lastErr = fmt.Errorf("API test call failed after refresh: %w", err)
	}

	if c.policy.ReauthOnRefreshFailure {
		c.logger.Warn("refreshing failed, starting a new authorization", "error", lastErr)
		return c.authorize(ctx, newReceiver)
	}
	return lastErr
}

func (c *Client) authorize(ctx context.Context, newReceiver ReceiverFunc) error {
	if newReceiver == nil {
		return &AuthError{Op: "authorize", Err: ErrNoReceiver}
	}
	receiver, err := newReceiver()
	if err != nil {
		return &AuthError{Op: "authorize", Err: err}
	}
	c.logger.Info("starting OAuth2 flow")
	if err := c.StartAuth(ctx, receiver); err != nil {
		return err
	}

	c.logger.Info("OAuth2 flow completed, testing API call")
	ok, err := c.TestAPICall(ctx)
	if !ok {
		return fmt.Errorf("API test call failed on initial auth: %w", err)
	}
	c.logger.Info("API test call successful")
	return c.AwaitApproval(ctx)
}
