package handlers

import (
	"net/http"

	"damagedetect/internal/middleware"
)

// LogoutHandler clears the session cookie and redirects to the login page.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   middleware.SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}
