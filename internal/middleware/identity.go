package middleware

import "github.com/labstack/echo/v4"

// Subject returns the authenticated subject, or "" for anonymous requests.
// Organizer tokens carry the organizer label as their subject.
func Subject(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok {
		return s
	}
	return ""
}

func currentUserID(c echo.Context) string {
	if s := Subject(c); s != "" {
		return s
	}
	return "anon"
}
