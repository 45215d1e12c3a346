package authsdk

import (
	"time"

	"github.com/aussiebroadwan/propulse/pkg/jwtx"
)

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the wire form of an OAuth2 error (RFC 6749 section 5.2).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse is returned by the JSON APIs when a request body
// fails field validation.
type ValidationErrorResponse struct {
	Code    string              `json:"code" example:"validation_error"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is the POST /connect/token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type" example:"Bearer"`
	ExpiresIn    int    `json:"expires_in" example:"900"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty" example:"openid profile email roles api"`
}

// IntrospectionResponse is the RFC 7662 introspection response. Only Active
// is set for inactive tokens.
type IntrospectionResponse struct {
	Active    bool            `json:"active"`
	Scope     string          `json:"scope,omitempty"`
	ClientID  string          `json:"client_id,omitempty"`
	Subject   string          `json:"sub,omitempty"`
	Username  string          `json:"username,omitempty"`
	TokenType string          `json:"token_type,omitempty"`
	Issuer    string          `json:"iss,omitempty"`
	Audience  jwtx.StringList `json:"aud,omitempty"`
	ExpiresAt int64           `json:"exp,omitempty"`
	IssuedAt  int64           `json:"iat,omitempty"`
	JTI       string          `json:"jti,omitempty"`
}

// UserInfoResponse is the GET /connect/userinfo response. EmailVerified is the
// string "true" or "false". Role is a string for one role and an array for
// several.
type UserInfoResponse struct {
	Subject       string          `json:"sub"`
	Name          string          `json:"name,omitempty"`
	Email         string          `json:"email,omitempty"`
	EmailVerified string          `json:"email_verified" example:"true"`
	Role          jwtx.StringList `json:"role,omitempty" swaggertype:"array,string"`
}

// DiscoveryDocument is the OpenID Provider metadata.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// JWKSResponse contains the public keys used to verify token signatures.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Client Registration Types
// ============================================================================

// CreateClientRequest registers an OAuth client application. A confidential
// client is issued a secret, which is returned once.
type CreateClientRequest struct {
	ClientID               string   `json:"client_id,omitempty" example:"propulse-web"`
	DisplayName            string   `json:"display_name" example:"Propulse Web"`
	Confidential           bool     `json:"confidential"`
	RedirectURIs           []string `json:"redirect_uris"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`
	GrantTypes             []string `json:"grant_types" example:"authorization_code,refresh_token"`
	Scopes                 []string `json:"scopes" example:"openid,profile,email,roles,api,offline_access"`
}

// ClientInfo describes a registered client. ClientSecret is only populated in
// the registration response.
type ClientInfo struct {
	ClientID               string    `json:"client_id"`
	ClientSecret           string    `json:"client_secret,omitempty"`
	DisplayName            string    `json:"display_name"`
	Confidential           bool      `json:"confidential"`
	RedirectURIs           []string  `json:"redirect_uris"`
	PostLogoutRedirectURIs []string  `json:"post_logout_redirect_uris,omitempty"`
	GrantTypes             []string  `json:"grant_types"`
	Scopes                 []string  `json:"scopes"`
	CreatedAt              time.Time `json:"created_at"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz (readyz adds Checks).
type HealthResponse struct {
	Status  string        `json:"status" example:"ok"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of critical dependencies.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
	Sessions string `json:"sessions"`
}

// ============================================================================
// Content Types
// ============================================================================

// Audit is carried by every content entity. Version changes on every write
// and must be echoed back on update and delete.
type Audit struct {
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
	Version   string    `json:"version"`
}

// ArticleRequest creates or updates an article. Version is required on
// update.
type ArticleRequest struct {
	Title          string     `json:"title" example:"Launch window opens"`
	Summary        string     `json:"summary,omitempty"`
	Content        string     `json:"content,omitempty"`
	State          string     `json:"state,omitempty" example:"Draft" enums:"Draft,Published,Retired"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	PublishedUntil *time.Time `json:"published_until,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Version        string     `json:"version,omitempty"`
}

type Article struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary,omitempty"`
	Content        string     `json:"content,omitempty"`
	State          string     `json:"state"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	PublishedUntil *time.Time `json:"published_until,omitempty"`
	Tags           []string   `json:"tags"`
	Audit
}

// Page is one page of a listing.
type Page[T any] struct {
	Items           []T  `json:"items"`
	PageIndex       int  `json:"page_index"`
	TotalPages      int  `json:"total_pages"`
	TotalItems      int  `json:"total_items"`
	HasPreviousPage bool `json:"has_previous_page"`
	HasNextPage     bool `json:"has_next_page"`
}

type CommentRequest struct {
	Content string `json:"content"`
	Version string `json:"version,omitempty"`
}

type Comment struct {
	ID        string `json:"id"`
	ArticleID string `json:"article_id"`
	Content   string `json:"content"`
	Audit
}

type RatingRequest struct {
	Value int `json:"value" minimum:"1" maximum:"5"`
}

type Rating struct {
	ID        string `json:"id"`
	ArticleID string `json:"article_id"`
	Value     int    `json:"value"`
	Audit
}

// RatingSummary aggregates the ratings of an article.
type RatingSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

type Tag struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name"`
}

// AttachmentRequest reserves a storage key for an upload.
type AttachmentRequest struct {
	ContentType string `json:"content_type" example:"image/png"`
	Path        string `json:"path" example:"hero.png"`
}

// Attachment carries a presigned URL: UploadURL right after creation,
// DownloadURL when fetched.
type Attachment struct {
	ID          string `json:"id"`
	ArticleID   string `json:"article_id"`
	ContentType string `json:"content_type"`
	Locator     string `json:"locator"`
	Path        string `json:"path"`
	UploadURL   string `json:"upload_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Audit
}
