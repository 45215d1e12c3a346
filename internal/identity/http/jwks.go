package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify JWTs.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get]
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(keys.PublicJWKS()))
	}
}

// DiscoveryHandler serves the OpenID Provider metadata.
//
//	@Summary		OpenID Connect discovery
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.DiscoveryDocument	"Provider metadata"
//	@Router			/.well-known/openid-configuration [get]
func DiscoveryHandler(km *jwtx.KeyManager) http.HandlerFunc {
	issuer := strings.TrimRight(km.Issuer(), "/")
	doc := authsdk.DiscoveryDocument{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/connect/authorize",
		TokenEndpoint:                     issuer + "/connect/token",
		UserinfoEndpoint:                  issuer + "/connect/userinfo",
		EndSessionEndpoint:                issuer + "/connect/logout",
		IntrospectionEndpoint:             issuer + "/connect/introspect",
		JWKSURI:                           issuer + "/.well-known/jwks.json",
		ScopesSupported:                   service.SupportedScopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token", "client_credentials"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{km.Algorithm()},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic", "none"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		ClaimsSupported:                   []string{"sub", "name", "email", "email_verified", "role", "nonce", "sid", "amr"},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}
