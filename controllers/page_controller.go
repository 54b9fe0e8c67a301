package controllers

import (
	"net/http"
	"net/url"

	"github.com/blogem/devkb/models"
)

// PageController renders the placeholder pages behind the Route Guard
type PageController struct{}

// NewPageController creates a new page controller
func NewPageController() *PageController {
	return &PageController{}
}

type pageData struct {
	Title     string
	Principal *models.Principal
	Message   string
	LoginURL  string
}

// Admin handles GET /admin
func (c *PageController) Admin(w http.ResponseWriter, r *http.Request, principal *models.Principal) error {
	return renderTemplate(w, "admin.html", pageData{
		Title:     "管理后台",
		Principal: principal,
	})
}

// Profile handles GET /profile
func (c *PageController) Profile(w http.ResponseWriter, r *http.Request, principal *models.Principal) error {
	return renderTemplate(w, "profile.html", pageData{
		Title:     "个人资料",
		Principal: principal,
	})
}

// Reject renders refused page requests as HTML with the refusal status
func (c *PageController) Reject(w http.ResponseWriter, r *http.Request, status int, message string) {
	data := pageData{Title: message, Message: message}
	if status == http.StatusUnauthorized {
		data.LoginURL = loginURL(r)
	}
	if err := renderTemplateWithStatus(w, status, "error.html", data); err != nil {
		http.Error(w, message, status)
	}
}

func loginURL(r *http.Request) string {
	return "/login?redirect=" + url.QueryEscape(r.URL.RequestURI())
}
