package oauth

// TokenResponse represents the token endpoint response body as defined
// in RFC 6749. Returned for both the authorization_code and
// refresh_token grants.
type TokenResponse struct {
	// AccessToken is the opaque credential presented to the usage API.
	// Usage: "Authorization: Bearer <access_token>"
	// Lifespan: short-lived; ExpiresIn reports the remaining seconds.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains new access tokens without user interaction.
	// Optional on refresh responses: when absent, the previously stored
	// refresh token remains valid and must be retained.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType indicates how to use the access token ("Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token. The
	// client converts this to an absolute instant at capture time.
	ExpiresIn int `json:"expires_in,omitempty"`

	// Scope is the space-separated granted scope set. May be less than
	// requested if some scopes were denied.
	Scope string `json:"scope,omitempty"`
}
