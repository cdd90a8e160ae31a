package oauthmodel

// TokenResponse is the provider's answer to a code exchange or a refresh.
// The three fields always travel together: a session stores all of them or none.
type TokenResponse struct {
	// AccessToken is the short-lived credential sent to URS, ECHO and CMR.
	AccessToken string `json:"access_token"`

	// RefreshToken mints a new access token without a new login.
	RefreshToken string `json:"refresh_token"`

	// ExpiresIn is the access token lifetime in seconds, as of issuance.
	ExpiresIn int `json:"expires_in"`

	// Endpoint is the provider user endpoint returned alongside the token, if any.
	Endpoint string `json:"endpoint,omitempty"`
}

// Validate checks the response carries a usable access token.
func (t *TokenResponse) Validate() error {
	if t == nil || t.AccessToken == "" {
		return ErrMissingAccessToken
	}
	return nil
}
