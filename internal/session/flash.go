package session

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// FlashCookieName carries one-shot notices across a redirect.
const FlashCookieName = "novelhub_flash"

const maxNotices = 8

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notice is a single flash message.
type Notice struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func writeNotices(w http.ResponseWriter, notices []Notice, secure bool) {
	notices = normalizeNotices(notices)
	if len(notices) == 0 {
		return
	}
	payload, err := json.Marshal(notices)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// readAndClearNotices consumes the flash cookie. The cookie is expired even
// when its value cannot be decoded.
func readAndClearNotices(w http.ResponseWriter, r *http.Request, secure bool) []Notice {
	cookie, err := r.Cookie(FlashCookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(cookie.Value))
	if err != nil {
		return nil
	}
	var notices []Notice
	if err := json.Unmarshal(decoded, &notices); err != nil {
		return nil
	}
	return normalizeNotices(notices)
}

func normalizeNotices(in []Notice) []Notice {
	out := make([]Notice, 0, len(in))
	for _, n := range in {
		n.Message = strings.TrimSpace(n.Message)
		if n.Message == "" {
			continue
		}
		switch n.Kind {
		case KindSuccess, KindError:
		default:
			continue
		}
		out = append(out, n)
		if len(out) == maxNotices {
			break
		}
	}
	return out
}
