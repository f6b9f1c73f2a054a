package httpserver

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"ephemeral-paste/internal/metrics"
	"ephemeral-paste/internal/paste"
	"ephemeral-paste/internal/storage"
)

var expireChoices = []expireOption{
	{Value: "never", Label: "Never"},
	{Value: "10m", Label: "10 minutes", Seconds: 10 * 60},
	{Value: "1h", Label: "1 hour", Seconds: 60 * 60},
	{Value: "1d", Label: "1 day", Seconds: 24 * 60 * 60},
	{Value: "7d", Label: "7 days", Seconds: 7 * 24 * 60 * 60},
}

const defaultExpire = "never"

type expireOption struct {
	Value   string
	Label   string
	Seconds int64
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type indexPageData struct {
	ExpireOptions []option
	Content       string
	Expire        string
	MaxViews      string
	Error         string
	MaxBytes      int
}

type viewPageData struct {
	Paste          *storage.Paste
	RemainingViews *int64
	ExpiresIn      string
	Canonical      string
}

type errorPageData struct {
	Message string
}

type titled interface {
	PageTitle() string
}

func (d indexPageData) PageTitle() string {
	return "New Paste · Ephemeral Paste"
}

func (d viewPageData) PageTitle() string {
	if d.Paste != nil && d.Paste.ID != "" {
		return fmt.Sprintf("%s · Ephemeral Paste", d.Paste.ID)
	}
	return "View Paste · Ephemeral Paste"
}

func (d errorPageData) PageTitle() string {
	if d.Message == "" {
		return "Ephemeral Paste"
	}
	return d.Message + " · Ephemeral Paste"
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index", s.indexData("", defaultExpire, "", ""))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxBytes)+4096)
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "index", s.indexData("", defaultExpire, "", "Unable to parse form"))
		return
	}

	content := r.FormValue("content")
	expire := r.FormValue("expire")
	maxViews := strings.TrimSpace(r.FormValue("max_views"))
	if expire == "" {
		expire = defaultExpire
	}
	fail := func(msg string) {
		s.metrics.Rejected()
		s.render(w, r, http.StatusBadRequest, "index", s.indexData(content, expire, maxViews, msg))
	}

	if len(content) > s.maxBytes {
		fail(s.tooLargeMessage())
		return
	}
	params := paste.CreateParams{Content: content}
	choice, ok := lookupExpire(expire)
	if !ok {
		fail("Invalid expiration")
		return
	}
	if choice.Seconds > 0 {
		ttl := choice.Seconds
		params.TTLSeconds = &ttl
	}
	if maxViews != "" {
		n, err := strconv.ParseInt(maxViews, 10, 64)
		if err != nil {
			fail("max_views must be an integer >= 1")
			return
		}
		params.MaxViews = &n
	}

	created, err := s.service.Create(r.Context(), params)
	if err != nil {
		if paste.IsValidation(err) {
			fail(err.Error())
			return
		}
		s.serverError(w, r, err)
		return
	}
	s.metrics.Created()

	http.Redirect(w, r, "/p/"+created.ID, http.StatusSeeOther)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	now := requestNow(r)
	view, ok := s.retrieve(w, r, now)
	if !ok {
		return
	}
	data := viewPageData{
		Paste:          view.Paste,
		RemainingViews: view.RemainingViews,
		ExpiresIn:      remaining(view.ExpiresAt(), now),
		Canonical:      s.canonicalURL(r, view.Paste.ID),
	}
	s.render(w, r, http.StatusOK, "view", data)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	view, ok := s.retrieve(w, r, requestNow(r))
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = io.WriteString(w, view.Paste.Content)
}

// handleQR encodes the paste URL. It only peeks, so rendering the code does
// not spend a view.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.service.Peek(r.Context(), id, requestNow(r)); err != nil {
		if paste.IsNotFound(err) {
			s.notFound(w, r)
			return
		}
		s.serverError(w, r, err)
		return
	}

	png, err := qrcode.Encode(s.canonicalURL(r, id), qrcode.Medium, 256)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// retrieve runs the counted retrieval and writes the error page on failure.
func (s *Server) retrieve(w http.ResponseWriter, r *http.Request, now time.Time) (*paste.View, bool) {
	view, err := s.service.Retrieve(r.Context(), chi.URLParam(r, "id"), now)
	if err != nil {
		if paste.IsNotFound(err) {
			s.metrics.Retrieval(metrics.OutcomeNotFound)
			s.notFound(w, r)
			return nil, false
		}
		s.metrics.Retrieval(metrics.OutcomeUnavailable)
		s.serverError(w, r, err)
		return nil, false
	}
	s.metrics.Retrieval(metrics.OutcomeOK)
	return view, true
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	title := "Ephemeral Paste"
	if t, ok := data.(titled); ok {
		if pt := t.PageTitle(); pt != "" {
			title = pt
		}
	}
	body := &bytes.Buffer{}
	bodyTemplate := name + "-body"
	if err := s.templates.ExecuteTemplate(body, bodyTemplate, data); err != nil {
		s.handleTemplateError(w, status, bodyTemplate, err)
		return
	}
	layoutBuf := &bytes.Buffer{}
	layoutData := struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()),
	}
	if err := s.templates.ExecuteTemplate(layoutBuf, "layout", layoutData); err != nil {
		s.handleTemplateError(w, status, "layout", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = layoutBuf.WriteTo(w)
}

func (s *Server) handleTemplateError(w http.ResponseWriter, status int, name string, err error) {
	s.logger.Error("render template", "error", err, "template", name)
	http.Error(w, "Template error", status)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("internal error", "error", err, "path", r.URL.Path)
	s.render(w, r, http.StatusInternalServerError, "error", errorPageData{Message: "Internal server error"})
}

// notFound is shared by missing and expired pastes.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "error", errorPageData{Message: "Paste not found"})
}

func (s *Server) indexData(content, selectedExpire, maxViews, errMsg string) indexPageData {
	if _, ok := lookupExpire(selectedExpire); !ok {
		selectedExpire = defaultExpire
	}
	opts := make([]option, 0, len(expireChoices))
	for _, c := range expireChoices {
		opts = append(opts, option{
			Value:    c.Value,
			Label:    c.Label,
			Selected: c.Value == selectedExpire,
		})
	}
	return indexPageData{
		ExpireOptions: opts,
		Content:       content,
		Expire:        selectedExpire,
		MaxViews:      maxViews,
		Error:         errMsg,
		MaxBytes:      s.maxBytes,
	}
}

func lookupExpire(v string) (expireOption, bool) {
	for _, c := range expireChoices {
		if c.Value == v {
			return c, true
		}
	}
	return expireOption{}, false
}

func remaining(expires *time.Time, now time.Time) string {
	if expires == nil {
		return "never"
	}
	if !now.Before(*expires) {
		return "expired"
	}
	dur := expires.Sub(now)
	if dur < time.Second {
		return "less than a second"
	}
	units := []struct {
		d    time.Duration
		name string
	}{
		{time.Hour * 24, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
	}
	parts := make([]string, 0, len(units))
	for _, u := range units {
		if dur >= u.d {
			count := dur / u.d
			parts = append(parts, plural(int(count), u.name))
			dur -= count * u.d
		}
	}
	if len(parts) == 0 {
		return plural(int(dur.Seconds()), "second")
	}
	return strings.Join(parts, ", ")
}

func plural(count int, singular string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %ss", count, singular)
}
