package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondOKWithETag is RespondOK for read endpoints polled by the web client
// (project detail, task lists). The tag covers data only, so a changed
// message string does not bust caches.
func RespondOKWithETag(ctx *gin.Context, message string, data any) {
	method := ctx.Request.Method
	if method != http.MethodGet && method != http.MethodHead {
		RespondOK(ctx, http.StatusOK, message, data)
		return
	}

	body, err := json.Marshal(data)
	if err != nil {
		RespondOK(ctx, http.StatusOK, message, data)
		return
	}

	sum := sha256.Sum256(body)
	etag := `W/"` + hex.EncodeToString(sum[:12]) + `"`

	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "private, no-cache")
	ctx.Header("Vary", "Authorization")

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	RespondOK(ctx, http.StatusOK, message, data)
}

// ifNoneMatchMatches uses weak comparison: W/"x" and "x" are equal.
func ifNoneMatchMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}
