package http

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pricechecker/admin/internal/domain"
	"github.com/pricechecker/admin/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	gate    *usecase.Gate
	client  domain.ContentClient
	flows   domain.FlowStore
	flowTTL time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(gate *usecase.Gate, client domain.ContentClient, flows domain.FlowStore, flowTTL time.Duration) *Handler {
	if flowTTL == 0 {
		flowTTL = time.Hour
	}
	return &Handler{
		gate:    gate,
		client:  client,
		flows:   flows,
		flowTTL: flowTTL,
	}
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricecheck-admin",
		"version": "1.0.0",
	})
}

// Login checks the submitted password and marks the session authenticated.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !h.gate.Authenticate(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrInvalidPassword.Error()})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAuthKey, true)
	if _, ok := session.Get(sessionIDKey).(string); !ok {
		session.Set(sessionIDKey, newSessionID())
	}
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// Logout clears the session and drops any flow state it owned.
func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	if sid, ok := session.Get(sessionIDKey).(string); ok {
		h.flows.Delete(editorKey(sid))
		h.flows.Delete(uploadKey(sid))
	}
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SessionStatus reports whether the caller's session is authenticated.
func (h *Handler) SessionStatus(c *gin.Context) {
	session := sessions.Default(c)
	auth, _ := session.Get(sessionAuthKey).(bool)
	c.JSON(http.StatusOK, gin.H{"authenticated": auth})
}

// GetCatalog enters (or re-enters) the view/edit flow: the catalog is fetched
// fresh from GitHub whenever no flow exists for the session or refresh=true,
// and the response is the filtered view for the q parameter.
func (h *Handler) GetCatalog(c *gin.Context) {
	sid := h.sessionID(c)
	if sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	refresh := c.Query("refresh") == "true"
	flow, ok := h.editorFlow(sid)
	if !ok || refresh {
		flow = usecase.NewEditorFlow(h.client)
		if err := flow.Load(c.Request.Context()); err != nil {
			// Keep the unavailable flow so the view keeps reporting it;
			// a later refresh replaces it.
			h.flows.Set(editorKey(sid), flow, h.flowTTL)
			c.JSON(http.StatusBadGateway, h.catalogView(flow))
			return
		}
		h.flows.Set(editorKey(sid), flow, h.flowTTL)
	}

	flow.SetQuery(c.Query("q"))
	c.JSON(http.StatusOK, h.catalogView(flow))
}

// UpdateRows applies the operator's edited visible rows to the flow's buffer.
// Edits made under an active filter touch only the matching rows; the rest of
// the catalog is preserved.
func (h *Handler) UpdateRows(c *gin.Context) {
	var req struct {
		Query string       `json:"query"`
		Rows  []domain.Row `json:"rows"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	flow, ok := h.editorFlow(h.sessionID(c))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no catalog loaded"})
		return
	}

	flow.SetQuery(req.Query)
	if err := flow.ApplyEdits(req.Rows); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.catalogView(flow))
}

// SaveCatalog commits the edited catalog back to GitHub using the version
// token captured at load time.
func (h *Handler) SaveCatalog(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	flow, ok := h.editorFlow(h.sessionID(c))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no catalog loaded"})
		return
	}

	sha, err := flow.Save(c.Request.Context(), req.Message)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sha": sha})
}

// Upload accepts a CSV file, parses and validates it, and returns a preview.
// The file replaces nothing until the operator commits it.
func (h *Handler) Upload(c *gin.Context) {
	sid := h.sessionID(c)
	if sid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file supplied"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer file.Close()

	flow := usecase.NewUploadFlow(h.client)
	selectErr := flow.SelectFile(file)
	h.flows.Set(uploadKey(sid), flow, h.flowTTL)

	view := h.uploadView(flow)
	if selectErr != nil {
		view["error"] = selectErr.Error()
		c.JSON(http.StatusBadRequest, view)
		return
	}

	c.JSON(http.StatusOK, view)
}

// UploadCommit overwrites the remote catalog with the previously validated
// upload, after re-fetching a current version token.
func (h *Handler) UploadCommit(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	flow, ok := h.uploadFlow(h.sessionID(c))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no upload pending"})
		return
	}

	sha, err := flow.Commit(c.Request.Context(), req.Message)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sha": sha})
}

// catalogView renders the editor flow for the API response.
func (h *Handler) catalogView(flow *usecase.EditorFlow) gin.H {
	visible := flow.Visible()
	view := gin.H{
		"state":        string(flow.State()),
		"columns":      flow.Columns(),
		"rows":         visible,
		"visible_rows": len(visible),
		"total_rows":   flow.TotalRows(),
		"sha":          flow.SHA(),
		"stats":        flow.Stats(),
	}
	if err := flow.LastError(); err != nil {
		view["error"] = err.Error()
	}
	return view
}

// uploadView renders the upload flow for the API response.
func (h *Handler) uploadView(flow *usecase.UploadFlow) gin.H {
	return gin.H{
		"state":           string(flow.State()),
		"columns":         flow.Columns(),
		"preview":         flow.Preview(),
		"total_rows":      flow.TotalRows(),
		"missing_columns": flow.Missing(),
	}
}

func (h *Handler) sessionID(c *gin.Context) string {
	session := sessions.Default(c)
	sid, _ := session.Get(sessionIDKey).(string)
	return sid
}

func (h *Handler) editorFlow(sid string) (*usecase.EditorFlow, bool) {
	if sid == "" {
		return nil, false
	}
	value, ok := h.flows.Get(editorKey(sid))
	if !ok {
		return nil, false
	}
	flow, ok := value.(*usecase.EditorFlow)
	return flow, ok
}

func (h *Handler) uploadFlow(sid string) (*usecase.UploadFlow, bool) {
	if sid == "" {
		return nil, false
	}
	value, ok := h.flows.Get(uploadKey(sid))
	if !ok {
		return nil, false
	}
	flow, ok := value.(*usecase.UploadFlow)
	return flow, ok
}

func editorKey(sid string) string { return sid + ":editor" }
func uploadKey(sid string) string { return sid + ":upload" }

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not survivable for session issuance
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// statusForError maps the domain error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrWriteConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCatalogUnavailable),
		errors.Is(err, domain.ErrWriteFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrMalformedCSV),
		errors.Is(err, domain.ErrMissingColumns),
		errors.Is(err, domain.ErrFlowState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
