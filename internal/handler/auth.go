package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/shopcart/internal/domain/auth"
	"github.com/xenking/shopcart/internal/domain/cart"
)

type identityKey struct{}

type adminKey struct{}

func identityFrom(ctx context.Context) cart.Identity {
	id, _ := ctx.Value(identityKey{}).(cart.Identity)
	return id
}

func adminFrom(ctx context.Context) *auth.Admin {
	a, _ := ctx.Value(adminKey{}).(*auth.Admin)
	return a
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(SessionHeader)
}

// session resolves the guest session of the path shop and passes the cart
// identity on in the context.
func (h *Handler) session(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shopID := r.PathValue("shop_id")
		sess, err := h.Auth.ResolveSession(r.Context(), shopID, sessionID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		id := cart.Identity{ShopID: shopID, SessionID: sess.ID, UserID: sess.UserID}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// admin requires a bearer token issued for the path shop.
func (h *Handler) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, r, auth.ErrInvalidToken)
			return
		}
		a, err := h.Auth.VerifyToken(r.Context(), r.PathValue("shop_id"), strings.TrimSpace(token))
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), adminKey{}, a)))
	})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Auth.StartSession(r.Context(), r.PathValue("shop_id"), "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeData(w, http.StatusCreated, "", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			strField(e, "session_id", sess.ID)
			strField(e, "expires_at", sess.ExpiresAt.UTC().Format(time.RFC3339))
		})
	})
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	body, err := decodeStrings(r, "email", "password")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if body["email"] == "" || body["password"] == "" {
		writeError(w, r, badRequest("email and password are required"))
		return
	}

	token, a, err := h.Auth.Login(r.Context(), r.PathValue("shop_id"), body["email"], body["password"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			strField(e, "token", token)
			e.Field("admin", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					strField(e, "id", a.ID)
					strField(e, "email", a.Email)
					strField(e, "role", a.Role)
					strField(e, "shop_id", a.ShopID)
				})
			})
		})
	})
}
