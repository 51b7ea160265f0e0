package handlers

import (
	"crypto/subtle"
	"net/http"

	"damagedetect/internal/config"
	"damagedetect/internal/logger"
	"damagedetect/internal/middleware"
)

type loginView struct {
	Error string
}

// LoginPageHandler renders the password form.
func LoginPageHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderLogin(w, http.StatusOK, loginView{}, logger)
	}
}

// LoginHandler checks the submitted password and sets the session cookie.
func LoginHandler(cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		password := r.FormValue("password")
		if cfg.Password == "" || subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) != 1 {
			logger.Warning("Failed login attempt from %s", r.RemoteAddr)
			renderLogin(w, http.StatusUnauthorized, loginView{Error: "Invalid password"}, logger)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    middleware.SessionToken(cfg.Password),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func renderLogin(w http.ResponseWriter, status int, view loginView, logger *logger.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, "login.html", view); err != nil {
		logger.Error("Error rendering login page: %v", err)
	}
}
