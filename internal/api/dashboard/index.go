package dashboard

import (
	"html/template"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/playback"
)

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"percent": func(v float64) float64 { return v * 100 },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>groovebox</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
td, th { padding: 0.25rem 0.75rem; text-align: left; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>
<h1>groovebox</h1>
<p>Bot {{if .Ready}}connected{{else}}offline{{end}}</p>
{{range .Guilds}}
<section>
<h2>Guild {{.GuildID}}</h2>
<p>State: {{.State}} &middot; Volume: {{printf "%.0f" (percent .Volume)}}% &middot; Loop: {{if .Looping}}on{{else}}off{{end}}</p>
{{with .CurrentTrack}}<p>Now playing: <a href="{{.URL}}">{{.Title}}</a> ({{.Duration}}) requested by {{.Requester}}</p>{{end}}
{{if .Queue}}
<table>
<tr><th>#</th><th>ID</th><th>Title</th><th>Duration</th><th>Requested by</th></tr>
{{range .Queue}}<tr><td>{{.Position}}</td><td>{{.ID}}</td><td>{{.Title}}</td><td>{{.Duration}}</td><td>{{.Requester}}</td></tr>
{{end}}
</table>
{{else}}
<p>The queue is empty.</p>
{{end}}
</section>
{{else}}
<p>No guilds yet.</p>
{{end}}
</body>
</html>
`))

type indexData struct {
	Ready  bool
	Guilds []playback.Snapshot
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	data := indexData{}
	for _, id := range s.player.GuildIDs() {
		snap, err := s.player.Snapshot(r.Context(), id)
		if err != nil {
			zlog.Warn().Msgf("dashboard: snapshot failed: guild=%s error=%v", id, err)
			continue
		}
		data.Ready = data.Ready || snap.BotReady
		data.Guilds = append(data.Guilds, snap)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		zlog.Warn().Msgf("dashboard: render failed: %v", err)
	}
}
