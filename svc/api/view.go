package api

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"pasteline/pkg/domain"
	"pasteline/svc/util"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
)

const pageCSP = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none';"

var pages = template.Must(template.New("paste").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .View}}Paste{{else if .Unavailable}}Paste Unavailable{{else}}Paste Not Found{{end}}</title>
<style>
body{font-family:system-ui,sans-serif;background:#f1f5f9;color:#0f172a;margin:0;padding:24px}
main{max-width:56rem;margin:0 auto}
.meta span{display:inline-block;margin-right:12px;padding:4px 12px;border-radius:9999px;font-size:14px}
.views{background:#eff6ff;color:#1d4ed8}.expiry{background:#fffbeb;color:#b45309}
pre{background:#fff;border:1px solid #e2e8f0;border-radius:8px;padding:24px;white-space:pre-wrap;word-break:break-word}
</style>
</head>
<body>
<main>
{{- if .View}}
<h1>Paste</h1>
<div class="meta">
{{- if .Remaining}}<span class="views">{{.Remaining}} views remaining</span>{{end}}
{{- with .ExpiresAt}}<span class="expiry">Expires: {{.}}</span>{{end}}
</div>
<pre>{{.View.Content}}</pre>
<p>This paste is shareable via this URL.</p>
{{- else if .Unavailable}}
<h1>{{.Status}}</h1>
<h2>Paste Unavailable</h2>
<p>The paste could not be loaded right now. Please try again later.</p>
{{- else}}
<h1>404</h1>
<h2>Paste Not Found</h2>
<p>This paste may have expired, reached its view limit, or never existed.</p>
{{- end}}
<p><a href="/">Create New Paste</a></p>
</main>
</body>
</html>
`))

type pageData struct {
	View        *domain.View
	Remaining   string
	ExpiresAt   string
	Unavailable bool
	Status      int
}

// ViewPaste renders a paste as HTML, counting the view. Content is always
// escaped; it is shown as text, never as markup.
func (h *Hdl) ViewPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", pageCSP)
	w.Header().Set("Cache-Control", "no-store")

	view, err := h.fetch(r)
	if err != nil {
		status := domain.Status(err)
		if !errors.Is(err, domain.ErrPasteNotFound) {
			log.Error().Err(err).Str("request_id", util.GetRequestID(r.Context())).Msg("view failed")
		}
		w.WriteHeader(status)
		h.render(w, r, pageData{Unavailable: status != http.StatusNotFound, Status: status})
		return
	}
	data := pageData{View: view}
	if view.RemainingViews != nil {
		data.Remaining = strconv.Itoa(*view.RemainingViews)
	}
	if view.ExpiresAt != nil {
		if t, err := time.Parse(time.RFC3339, *view.ExpiresAt); err == nil {
			data.ExpiresAt = t.UTC().Format("Jan 2, 2006 15:04:05 UTC")
		}
	}
	h.render(w, r, data)
}

func (h *Hdl) render(w http.ResponseWriter, r *http.Request, data pageData) {
	if err := pages.Execute(w, data); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to render page")
	}
}
