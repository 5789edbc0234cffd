package security

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

const (
	AccessTokenCookie = "access_token"
	NoticeCookie      = "paygw_notice"

	noticeMaxAge = 120
)

const (
	NoticeSuccess = "success"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// Notice is the message shown to the payer on the page the return flow redirects to.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	secret   string
}

func NewCookieManager(domain string, secure bool, sameSite, secret string) *CookieManager {
	ss := http.SameSiteLaxMode
	switch strings.ToLower(sameSite) {
	case "none":
		ss = http.SameSiteNoneMode
	case "strict":
		ss = http.SameSiteStrictMode
	}
	return &CookieManager{Domain: domain, Secure: secure, SameSite: ss, secret: secret}
}

// SetNotice stores a signed notice cookie for the next page view.
func (c *CookieManager) SetNotice(w http.ResponseWriter, n Notice) {
	raw, err := json.Marshal(n)
	if err != nil {
		return
	}
	value := SignState(base64.RawURLEncoding.EncodeToString(raw), c.secret)
	http.SetCookie(w, &http.Cookie{Name: NoticeCookie, Value: value, Path: "/", HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain, MaxAge: noticeMaxAge})
}

// PopNotice reads and clears the notice cookie. Tampered cookies are dropped.
func (c *CookieManager) PopNotice(w http.ResponseWriter, r *http.Request) (Notice, bool) {
	raw := GetCookie(r, NoticeCookie)
	if raw == "" {
		return Notice{}, false
	}
	http.SetCookie(w, &http.Cookie{Name: NoticeCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite, Domain: c.Domain})
	payload, ok := VerifySignedState(raw, c.secret)
	if !ok {
		return Notice{}, false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Notice{}, false
	}
	var n Notice
	if err := json.Unmarshal(decoded, &n); err != nil {
		return Notice{}, false
	}
	return n, true
}

func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
