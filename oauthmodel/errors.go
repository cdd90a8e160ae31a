package oauthmodel

import "errors"

var (
	ErrMissingAccessToken = errors.New("token response has no access token")
	ErrMissingCode        = errors.New("authorization code is required")
	ErrMissingClientID    = errors.New("client id is required")
	ErrMissingRedirectURI = errors.New("redirect uri is required")
)
