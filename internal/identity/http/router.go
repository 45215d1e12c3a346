package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/internal/identity/session"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"

	_ "github.com/aussiebroadwan/propulse/api/identity" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware
	limiters    []*httpx.RateLimiter

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
	sessions     session.Store

	Cookies          *Cookies
	AllowedOrigins   []string // accepted on cookie-authenticated posts besides the request host
	AccountService   *service.AccountService
	ExternalService  *service.ExternalLoginService
	TwoFactorService *service.TwoFactorService
	ManageService    *service.ManageService
	ContentService   *service.ContentService
	ClientService    *service.ClientService
	AuthorizeService *service.AuthorizeService
	TokenService     *service.TokenService
	UserInfoService  *service.UserInfoService
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	sessions session.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		sessions:     sessions,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerAccount()
	r.registerManage()
	r.registerClients()
	r.registerContent()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// Limiters returns every rate limiter created by ApplyRoutes so their idle
// buckets can be swept.
func (r *Router) Limiters() []*httpx.RateLimiter {
	return r.limiters
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Propulse Identity API
//	@version		0.1.0
//	@description	OpenID Connect provider with browser account pages and a content API.
//	@description
//	@description				Access tokens are JWTs verifiable with the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/propulse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// limit builds a tracked rate limiter keyed by extract.
func (r *Router) limit(cfg httpx.RateLimitConfig, extract httpx.KeyExtractor) httpx.Middleware {
	rl := httpx.NewRateLimiter(cfg)
	r.limiters = append(r.limiters, rl)
	return rl.Middleware(extract)
}

// sameOrigin guards cookie-authenticated form posts against cross-site
// submission.
func (r *Router) sameOrigin() httpx.Middleware {
	return httpx.RequireSameOrigin(httpx.CSRFConfig{AllowedOrigins: r.AllowedOrigins})
}

func (r *Router) byIP(cfg httpx.RateLimitConfig) httpx.Middleware {
	return r.limit(cfg, httpx.IPKeyExtractor)
}

func (r *Router) byUser(cfg httpx.RateLimitConfig) httpx.Middleware {
	return r.limit(cfg, httpx.CompositeKeyExtractor(":", httpx.UserIDKeyExtractor, httpx.IPKeyExtractor))
}

func (r *Router) byIPAndField(cfg httpx.RateLimitConfig, field string) httpx.Middleware {
	return r.limit(cfg, httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.FormFieldKeyExtractor(field)))
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{
		AuthorizeService: r.AuthorizeService,
		Cookies:          r.Cookies,
	}
	authorize := httpx.Chain(authorizeHandler, r.byIP(httpx.LenientLimit))
	r.Mux.Handle("GET /connect/authorize", authorize)
	r.Mux.Handle("POST /connect/authorize", authorize)

	// POST /token - strict rate limit by IP (covers all grant types)
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /connect/token",
		httpx.Chain(tokenHandler,
			r.byIP(httpx.StrictLimit),
		),
	)

	// Introspection endpoint (RFC7662) - client authenticated, moderate limit
	introspectHandler := &IntrospectHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /connect/introspect",
		httpx.Chain(introspectHandler,
			r.byIP(httpx.ModerateLimit),
		),
	)

	userInfo := httpx.Chain(&UserInfoHandler{UserInfoService: r.UserInfoService},
		httpx.BearerAuth(r.keys.Verifier),
		r.byUser(httpx.LenientLimit),
	)
	r.Mux.Handle("GET /connect/userinfo", userInfo)
	r.Mux.Handle("POST /connect/userinfo", userInfo)

	logout := &LogoutHandler{Cookies: r.Cookies, ClientService: r.ClientService}
	r.Mux.Handle("GET /connect/logout", logout)
	r.Mux.Handle("POST /connect/logout", httpx.Chain(logout, r.sameOrigin()))

	// Public discovery endpoints with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys.KeySet),
			r.byIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.keys),
			r.byIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerAccount() {
	h := &AccountHandler{
		Accounts:  r.AccountService,
		External:  r.ExternalService,
		TwoFactor: r.TwoFactorService,
		Cookies:   r.Cookies,
	}
	pages := r.byIP(httpx.LenientLimit)
	view := func(fn http.HandlerFunc) http.Handler { return httpx.Chain(fn, pages) }

	// Credential and recovery posts are limited by address and email to
	// slow down guessing.
	guarded := func(fn http.HandlerFunc, field string) http.Handler {
		return httpx.Chain(fn, r.byIPAndField(httpx.StrictLimit, field))
	}

	r.Mux.Handle("GET /Account/Login", view(h.LoginPage))
	r.Mux.Handle("POST /Account/Login", guarded(h.Login, "Email"))
	r.Mux.Handle("GET /Account/Logout", view(h.Logout))
	r.Mux.Handle("POST /Account/Logout", httpx.Chain(http.HandlerFunc(h.Logout), pages, r.sameOrigin()))

	r.Mux.Handle("GET /Account/Register", view(h.RegisterPage))
	r.Mux.Handle("POST /Account/Register", guarded(h.Register, "Email"))
	r.Mux.Handle("GET /Account/ConfirmEmail", view(h.ConfirmEmail))
	r.Mux.Handle("GET /Account/ResendEmailConfirmation", view(h.ResendEmailConfirmationPage))
	r.Mux.Handle("POST /Account/ResendEmailConfirmation", guarded(h.ResendEmailConfirmation, "Email"))

	r.Mux.Handle("GET /Account/ForgotPassword", view(h.ForgotPasswordPage))
	r.Mux.Handle("POST /Account/ForgotPassword", guarded(h.ForgotPassword, "Email"))
	r.Mux.Handle("GET /Account/ResetPassword", view(h.ResetPasswordPage))
	r.Mux.Handle("POST /Account/ResetPassword", guarded(h.ResetPassword, "Email"))

	r.Mux.Handle("GET /Account/ExternalLogin", view(h.ExternalLogin))
	r.Mux.Handle("POST /Account/ExternalLogin", view(h.ExternalLogin))
	r.Mux.Handle("GET /Account/ExternalLoginCallback", view(h.ExternalLoginCallback))
	r.Mux.Handle("GET /Account/RegisterExternalLogin", view(h.RegisterExternalLoginPage))
	r.Mux.Handle("POST /Account/RegisterExternalLogin", guarded(h.RegisterExternalLogin, "Email"))

	r.Mux.Handle("GET /Account/TwoFactor", view(h.TwoFactorPage))
	r.Mux.Handle("POST /Account/TwoFactor",
		httpx.Chain(http.HandlerFunc(h.TwoFactorSubmit), r.byIP(httpx.StrictLimit), r.sameOrigin()),
	)

	r.Mux.Handle("GET /Account/AwaitEmailConfirmation", view(h.StaticPage("await_email_confirmation.html", "Confirm your email")))
	r.Mux.Handle("GET /Account/AwaitPasswordReset", view(h.StaticPage("await_password_reset.html", "Check your email")))
	r.Mux.Handle("GET /Account/LockedOut", view(h.StaticPage("locked_out.html", "Locked out")))
	r.Mux.Handle("GET /Account/ExternalLoginError", view(h.StaticPage("external_login_error.html", "External login failed")))
}

func (r *Router) registerManage() {
	h := &ManageHandler{Manage: r.ManageService, Cookies: r.Cookies}
	limit := r.byIP(httpx.ModerateLimit)
	admin := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, limit, h.RequireAdministrator)
	}
	adminPost := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, limit, r.sameOrigin(), h.RequireAdministrator)
	}

	r.Mux.Handle("GET /Manage", http.RedirectHandler("/Manage/Index", http.StatusFound))
	r.Mux.Handle("GET /Manage/Index", admin(h.Index))
	r.Mux.Handle("GET /Manage/Edit/{id}", admin(h.EditPage))
	r.Mux.Handle("POST /Manage/Edit/{id}", adminPost(h.Edit))
	r.Mux.Handle("GET /Manage/Delete/{id}", admin(h.DeletePage))
	r.Mux.Handle("POST /Manage/Delete/{id}", adminPost(h.Delete))
}

func (r *Router) registerClients() {
	h := &ClientsHandler{ClientService: r.ClientService}

	// POST /v1/clients - bootstrap token guarded, strict limit against token guessing
	r.Mux.Handle("POST /v1/clients",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			r.byIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerContent() {
	h := &ArticlesHandler{Content: r.ContentService}

	readLimit := r.byUser(httpx.LenientLimit)
	writeLimit := r.byUser(httpx.ModerateLimit)

	read := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.BearerAuth(r.keys.Verifier),
			httpx.RequireAnyScope(service.ScopeAPI),
			readLimit,
		)
	}
	write := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.BearerAuth(r.keys.Verifier),
			httpx.RequireAnyScope(service.ScopeAPI),
			httpx.RequireAnyRole(domain.RoleAuthor, domain.RoleAdministrator),
			writeLimit,
		)
	}

	r.Mux.Handle("GET /v1/articles", read(h.List))
	r.Mux.Handle("POST /v1/articles", write(h.Create))
	r.Mux.Handle("GET /v1/articles/{id}", read(h.Get))
	r.Mux.Handle("PUT /v1/articles/{id}", write(h.Update))
	r.Mux.Handle("DELETE /v1/articles/{id}", write(h.Delete))

	r.Mux.Handle("GET /v1/articles/{id}/comments", read(h.ListComments))
	r.Mux.Handle("POST /v1/articles/{id}/comments", write(h.AddComment))
	r.Mux.Handle("PUT /v1/comments/{id}", write(h.UpdateComment))
	r.Mux.Handle("DELETE /v1/comments/{id}", write(h.DeleteComment))

	r.Mux.Handle("GET /v1/articles/{id}/ratings", read(h.RatingSummary))
	r.Mux.Handle("POST /v1/articles/{id}/ratings", write(h.Rate))

	r.Mux.Handle("GET /v1/tags", read(h.ListTags))

	r.Mux.Handle("GET /v1/articles/{id}/attachments", read(h.ListAttachments))
	r.Mux.Handle("POST /v1/articles/{id}/attachments", write(h.CreateAttachment))
	r.Mux.Handle("GET /v1/attachments/{id}", read(h.GetAttachment))
	r.Mux.Handle("DELETE /v1/attachments/{id}", write(h.DeleteAttachment))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			r.byIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys, r.sessions),
			r.byIP(httpx.LenientLimit),
		),
	)
}
