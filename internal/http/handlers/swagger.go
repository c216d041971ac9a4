package handlers

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openAPISpec []byte

var openAPIETag = func() string {
	sum := sha256.Sum256(openAPISpec)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

// persistAuthorization keeps the pasted bearer token across reloads, which
// is most of what the docs page is used for.
var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width,initial-scale=1" />
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
    <style>body { margin: 0; } #swagger-ui { max-width: 1200px; margin: 0 auto; }</style>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: "{{.SpecURL}}",
        dom_id: "#swagger-ui",
        deepLinking: true,
        persistAuthorization: true,
        displayRequestDuration: true,
        tagsSorter: "alpha"
      });
    </script>
  </body>
</html>`))

func SwaggerUI(ctx *gin.Context) {
	ctx.Header("Content-Type", "text/html; charset=utf-8")
	ctx.Status(http.StatusOK)

	err := docsPage.Execute(ctx.Writer, struct {
		Title   string
		SpecURL string
	}{Title: "SynergySphere API", SpecURL: "/docs/openapi.yaml"})
	if err != nil {
		_ = ctx.Error(err)
	}
}

func OpenAPISpec(ctx *gin.Context) {
	ctx.Header("ETag", openAPIETag)
	ctx.Header("Cache-Control", "public, max-age=300")

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), openAPIETag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(http.StatusOK, "application/yaml; charset=utf-8", openAPISpec)
}
