package oauthmodel

// ResponseType represents the OAuth 2.0 response type requested at the authorize endpoint.
type ResponseType string

const (
	// CodeResponseType is the only flow URS supports for web clients.
	CodeResponseType ResponseType = "code"
)

// AuthorizationParameters are the query parameters of the provider login redirect.
type AuthorizationParameters struct {
	ClientID     string
	RedirectURI  string
	ResponseType ResponseType
	State        string
}

func (p AuthorizationParameters) Validate() error {
	if p.ClientID == "" {
		return ErrMissingClientID
	}
	if p.RedirectURI == "" {
		return ErrMissingRedirectURI
	}
	return nil
}
