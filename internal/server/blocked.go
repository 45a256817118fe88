package server

import (
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// CompletePath is the route of the page opened when a session times out.
const CompletePath = "/complete"

var blockedPage = template.Must(template.New("blocked").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Blocked</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 36rem; margin: 4rem auto; color: #111; }
h1 { color: #2563eb; }
code { background: #f3f4f6; padding: 0 .25rem; }
</style>
</head>
<body>
<h1>Stay focused, {{.DisplayName}}</h1>
{{if .Current}}<p><code>{{.Current}}</code> is not part of this session.</p>{{end}}
{{if .Allowed}}<p>Allowed sites:</p>
<ul>{{range .Allowed}}<li>{{.}}</li>{{end}}</ul>{{end}}
</body>
</html>
`))

var completePage = template.Must(template.New("complete").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Session complete</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 36rem; margin: 4rem auto; color: #111; }
h1 { color: #16a34a; }
</style>
</head>
<body>
<h1>Well done, {{.DisplayName}}</h1>
{{with .Last}}<p>You stayed on task for {{.ActualDuration}} of {{.Duration}} minutes.</p>
{{if .Tasks}}<ul>{{range .Tasks}}<li>{{if .Completed}}&#10003;{{else}}&#9744;{{end}} {{.Text}}</li>{{end}}</ul>{{end}}{{end}}
</body>
</html>
`))

type completeView struct {
	DisplayName string
	Last        *domain.SessionRecord
}

type blockedView struct {
	DisplayName string
	Current     string
	Allowed     []string
}

// handleBlocked renders the redirect-tier page from its query string.
func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := blockedView{
		DisplayName: s.svc.DisplayName(r.Context()),
		Current:     q.Get("current"),
	}
	for _, d := range strings.Split(q.Get("tracking"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			view.Allowed = append(view.Allowed, d)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := blockedPage.Execute(w, view); err != nil {
		s.logger.Warn("render blocked page failed", zap.Error(err))
	}
}

// handleComplete summarizes the most recently archived session.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	view := completeView{DisplayName: s.svc.DisplayName(r.Context())}
	if _, history, err := s.svc.SessionData(r.Context()); err == nil && len(history) > 0 {
		last := history[len(history)-1]
		view.Last = &last
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := completePage.Execute(w, view); err != nil {
		s.logger.Warn("render completion page failed", zap.Error(err))
	}
}
