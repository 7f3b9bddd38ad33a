// Package graphiql serves an in-browser GraphQL explorer.
package graphiql

import (
	"bytes"
	_ "embed"
	"net/http"
	"text/template"

	"github.com/rs/zerolog"
)

//go:embed graphiql.html
var graphiql string

var page = template.Must(template.New("graphiql").Parse(graphiql))

// New serves the explorer pointed at endpoint, the path the GraphQL API is
// served from.
func New(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var buffer bytes.Buffer
		if err := page.Execute(&buffer, struct{ Route string }{Route: endpoint}); err != nil {
			zerolog.Ctx(req.Context()).Error().Err(err).Msg("unable to render graphiql")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write(buffer.Bytes())
	}
}
