package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/cubist/internal/cube"
	"github.com/roach88/cubist/internal/lookup"
	"github.com/roach88/cubist/internal/store"
	"github.com/roach88/cubist/internal/subset"
)

// Response is the envelope of every JSON response.
type Response struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Key     string            `json:"key,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// LookupData is the payload of /v1/lookup.
type LookupData struct {
	Key  string           `json:"key"`
	Rows []map[string]any `json:"rows"`
}

// ArtifactData is the payload of /v1/artifacts/:key.
type ArtifactData struct {
	Key          string           `json:"key"`
	Dimensions   []string         `json:"dimensions"`
	Measures     []string         `json:"measures"`
	SnapshotHash string           `json:"snapshot_hash"`
	ContentHash  string           `json:"content_hash"`
	Rows         []map[string]any `json:"rows"`
}

type handlers struct {
	lookup *lookup.Service
	store  store.Store
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Status: "ok"})
}

// lookupRows serves GET /v1/lookup?dim=value&...
func (h *handlers) lookupRows(c *gin.Context) {
	raw := make(map[string]string)
	for name, values := range c.Request.URL.Query() {
		if len(values) != 1 {
			writeError(c, cube.NewConfigError("dimension %q given %d times", name, len(values)))
			return
		}
		raw[name] = values[0]
	}

	res, err := h.lookup.QueryRaw(c.Request.Context(), raw)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   LookupData{Key: res.Key, Rows: res.Objects()},
	})
}

func (h *handlers) listArtifacts(c *gin.Context) {
	keys, err := h.store.Keys(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Status: "ok", Data: gin.H{"keys": keys}})
}

func (h *handlers) getArtifact(c *gin.Context) {
	key := c.Param("key")
	names, err := subset.ParseKey(key)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := subset.FromNames(h.lookup.Catalog(), names); err != nil {
		writeError(c, err)
		return
	}

	a, err := h.lookup.Artifact(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}

	rows := make([]map[string]any, len(a.Rows))
	for i, r := range a.Rows {
		rows[i] = a.RowObject(r)
	}
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data: ArtifactData{
			Key:          a.Key,
			Dimensions:   a.Dimensions,
			Measures:     a.Measures,
			SnapshotHash: a.SnapshotHash,
			ContentHash:  a.ContentHash,
			Rows:         rows,
		},
	})
}

// writeError maps missing artifacts to 404, other configuration errors to
// 400 and everything else to 500.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := http.StatusInternalServerError
	switch {
	case cube.IsNotFound(err):
		status = http.StatusNotFound
	case cube.IsConfigError(err):
		status = http.StatusBadRequest
	}

	body := &ErrorBody{Code: "INTERNAL", Message: err.Error()}
	var e *cube.Error
	if errors.As(err, &e) {
		body.Code = string(e.Code)
		body.Message = e.Message
		body.Key = e.Key
		body.Details = e.Details
	}
	if status == http.StatusNotFound {
		body.Code = string(cube.ErrCodeNotFound)
	}
	c.JSON(status, Response{Status: "error", Error: body})
}
