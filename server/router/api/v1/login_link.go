package v1

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/server/auth"
	"github.com/chatrelay/chatrelay/server/handshake"
)

var loginPage = template.Must(template.New("bot-login").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 28rem; margin: 4rem auto; padding: 0 1rem; color: #222; }
h1 { font-size: 1.3rem; }
a.button { display: inline-block; margin-top: 1rem; padding: .6rem 1.2rem; background: #25d366; color: #fff; border-radius: .4rem; text-decoration: none; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .ChatURL}}<a class="button" href="{{.ChatURL}}">Back to chat</a>{{end}}
</body>
</html>
`))

type loginPageData struct {
	Title   string
	Message string
	ChatURL string
}

// handleBotLogin is the landing page behind the one-time login link
// sent in chat. A signed-in browser redeems the token; anyone else
// is asked to sign in first.
func (s *APIV1Service) handleBotLogin(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return s.renderLoginPage(c, http.StatusBadRequest, loginPageData{
			Title:   "Invalid link",
			Message: "This login link is missing its token. Request a new one by sending login in the chat.",
		})
	}

	identity, sid, ok := s.identityFromCookie(c)
	if !ok {
		return s.renderLoginPage(c, http.StatusUnauthorized, loginPageData{
			Title:   "Sign in first",
			Message: "Sign in to your account in this browser, then open the login link again.",
		})
	}

	result, err := s.Handshake.Redeem(
		c.Request().Context(),
		token,
		identity.Email,
		sid,
		identity.Remaining(time.Now()),
		"web",
	)
	if err != nil {
		s.Metrics.TokensRedeemed.WithLabelValues("error").Inc()
		return s.renderLoginPage(c, http.StatusInternalServerError, loginPageData{
			Title:   "Something went wrong",
			Message: "We could not complete the login. Request a new link by sending login in the chat.",
		})
	}

	switch result.Outcome {
	case handshake.RedeemSuccess:
		s.Metrics.TokensRedeemed.WithLabelValues("success").Inc()
		return s.renderLoginPage(c, http.StatusOK, loginPageData{
			Title:   "You're connected",
			Message: fmt.Sprintf("The chat is now linked to %s. You can close this page.", identity.Email),
			ChatURL: s.chatURL(),
		})
	case handshake.RedeemExpired:
		s.Metrics.TokensRedeemed.WithLabelValues("expired").Inc()
		return s.renderLoginPage(c, http.StatusGone, loginPageData{
			Title:   "Link expired",
			Message: "This login link has expired. Request a new one by sending login in the chat.",
			ChatURL: s.chatURL(),
		})
	default:
		s.Metrics.TokensRedeemed.WithLabelValues("invalid").Inc()
		return s.renderLoginPage(c, http.StatusNotFound, loginPageData{
			Title:   "Link not valid",
			Message: "This login link was already used or never existed. Request a new one by sending login in the chat.",
			ChatURL: s.chatURL(),
		})
	}
}

func (s *APIV1Service) renderLoginPage(c echo.Context, status int, data loginPageData) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return loginPage.Execute(c.Response(), data)
}

func (s *APIV1Service) chatURL() string {
	if s.Profile.BotNumber == "" {
		return ""
	}
	return "https://wa.me/" + s.Profile.BotNumber
}

// identityFromCookie validates the browser session cookie.
func (s *APIV1Service) identityFromCookie(c echo.Context) (*auth.Identity, string, bool) {
	cookie, err := c.Cookie(auth.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, "", false
	}
	identity, err := s.Authenticator.Validate(c.Request().Context(), cookie.Value)
	if err != nil {
		return nil, "", false
	}
	return identity, cookie.Value, true
}
