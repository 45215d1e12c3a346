/*
Package authsdk is a client for the Propulse identity service.

SDKClient covers the public endpoints: discovery, JWKS, health, the token
endpoint and client registration. Session wraps an access token, refreshes it
when it expires and calls the protected APIs:

	client := authsdk.NewSDKClient("https://id.propulse.example")

	session, err := client.AuthenticateWithClientCredentials(ctx, "reporting", secret, []string{"api"})
	if err != nil {
		return err
	}
	page, err := session.ListArticles(ctx, 1, 10, "")

Browser drives the cookie based account pages, which is how an end user
obtains an authorization code:

	browser, _ := client.NewBrowser()
	pkce, _ := authsdk.GeneratePKCEChallenge()
	tokens, err := browser.AuthorizeWithPassword(ctx, authsdk.AuthorizeRequest{
		ClientID:    "propulse-web",
		RedirectURI: "https://app.propulse.example/callback",
		Scopes:      []string{"openid", "profile", "email", "roles", "api", "offline_access"},
		State:       state,
		PKCE:        pkce,
	}, "", "user@example.com", password)

Errors returned for non-2xx responses are *OAuth2Error and can be matched
against the predefined values with errors.Is.
*/
package authsdk
