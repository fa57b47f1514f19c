package identity

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/shyam-menon/travelmate"
)

// OAuth2Exchange adapts a standard three-legged OAuth2 configuration to
// the broker's exchange hook. The stored descriptor carries the
// authorization code from the provider redirect; the exchange swaps it for
// an access token at the provider's token endpoint.
//
//	broker := identity.NewBroker(authURL, callbackURL,
//		identity.WithExchange(identity.OAuth2Exchange(&oauth2.Config{
//			ClientID:     cfg.ClientID,
//			ClientSecret: cfg.ClientSecret,
//			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
//			RedirectURL:  callbackURL,
//			Scopes:       scopes,
//		})))
func OAuth2Exchange(cfg *oauth2.Config) ExchangeFunc {
	return func(ctx context.Context, sessionID string, d travelmate.TokenDescriptor) (string, time.Duration, error) {
		if d.Value == "" {
			return "", 0, fmt.Errorf("empty authorization code for session %s: %w", sessionID, travelmate.ErrAuthorizationDenied)
		}
		tok, err := cfg.Exchange(ctx, d.Value)
		if err != nil {
			return "", 0, fmt.Errorf("code exchange: %w", err)
		}
		var ttl time.Duration
		if !tok.Expiry.IsZero() {
			ttl = time.Until(tok.Expiry)
		}
		return tok.AccessToken, ttl, nil
	}
}
