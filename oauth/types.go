// Package oauth holds the OAuth 2.0 wire-level constants and shapes used
// against the Claude authorization server.
package oauth

// ResponseType represents the OAuth 2.0 response type requested from the
// authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow, the only
	// flow this client speaks.
	// Example: /oauth/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange)
// challenge method. PKCE is mandatory here: the client is public, so the
// verifier/challenge pair is the only thing binding the authorization
// code to this process.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing of the verifier.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token
// endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, redirect_uri, code_verifier
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for new tokens without
	// re-authenticating the user.
	// Token request includes: refresh_token, client_id
	// Note: the server may or may not rotate the refresh token.
	RefreshTokenGrant GrantType = "refresh_token"
)
