package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"ecoreports/config"
	"ecoreports/internal/service"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	oauthStateCookie   = "oauth_state"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

type GoogleOAuthHandler struct {
	cfg     *config.Config
	authSvc *service.AuthService
	// overridable in tests
	userInfoURL  string
	tokenInfoURL string
}

func NewGoogleOAuthHandler(cfg *config.Config, authSvc *service.AuthService) *GoogleOAuthHandler {
	return &GoogleOAuthHandler{
		cfg:          cfg,
		authSvc:      authSvc,
		userInfoURL:  googleUserInfoURL,
		tokenInfoURL: googleTokenInfoURL,
	}
}

func (h *GoogleOAuthHandler) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.cfg.OAuth.GoogleClientID,
		ClientSecret: h.cfg.OAuth.GoogleClientSecret,
		RedirectURL:  h.cfg.OAuth.GoogleRedirectURL,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}
}

func (h *GoogleOAuthHandler) configured(c *gin.Context) bool {
	if h.cfg.OAuth.GoogleClientID == "" {
		respondError(c, service.ErrUnavailable("Google OAuth no está configurado"))
		return false
	}
	return true
}

// Redirect sends the user to the Google consent screen.
func (h *GoogleOAuthHandler) Redirect(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	state := uuid.NewString()
	c.SetCookie(oauthStateCookie, state, 600, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, h.OAuth2Config().AuthCodeURL(state, oauth2.AccessTypeOffline))
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Callback exchanges the code, fetches the profile, signs the user in and returns JWTs.
func (h *GoogleOAuthHandler) Callback(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	if state, err := c.Cookie(oauthStateCookie); err != nil || state == "" || state != c.Query("state") {
		respondError(c, service.ErrUnauthorized("estado OAuth inválido"))
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "falta el parámetro code")
		return
	}
	ctx := c.Request.Context()
	conf := h.OAuth2Config()
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		log.WithError(err).Warn("google code exchange failed")
		respondError(c, service.ErrUnauthorized("no se pudo validar el código de Google"))
		return
	}
	resp, err := conf.Client(ctx, tok).Get(h.userInfoURL)
	if err != nil {
		respondError(c, service.ErrDependency("GOOGLE_UNAVAILABLE", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respondError(c, service.ErrUnauthorized("Google rechazó el token"))
		return
	}
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		respondError(c, service.ErrDependency("GOOGLE_UNAVAILABLE", err))
		return
	}
	h.signIn(c, info.ID, info.Email, info.Name, info.Picture)
}

type tokeninfoResponse struct {
	Sub     string `json:"sub"`
	Aud     string `json:"aud"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Token accepts an ID token from the mobile google_sign_in flow and returns JWTs.
func (h *GoogleOAuthHandler) Token(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id_token es obligatorio")
		return
	}
	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet,
		h.tokenInfoURL+"?id_token="+url.QueryEscape(req.IDToken), nil)
	if err != nil {
		respondError(c, err)
		return
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		respondError(c, service.ErrDependency("GOOGLE_UNAVAILABLE", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respondError(c, service.ErrUnauthorized("id_token inválido"))
		return
	}
	var info tokeninfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		respondError(c, service.ErrDependency("GOOGLE_UNAVAILABLE", err))
		return
	}
	if info.Sub == "" || info.Email == "" || info.Aud != h.cfg.OAuth.GoogleClientID {
		respondError(c, service.ErrUnauthorized("id_token inválido"))
		return
	}
	h.signIn(c, info.Sub, info.Email, info.Name, info.Picture)
}

func (h *GoogleOAuthHandler) signIn(c *gin.Context, googleID, email, name, picture string) {
	res, err := h.authSvc.LoginWithGoogle(c.Request.Context(), googleID, email, name, picture)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"usuario":       res.User,
		"access_token":  res.Tokens.AccessToken,
		"refresh_token": res.Tokens.RefreshToken,
		"nuevo":         res.IsNew,
	})
}
