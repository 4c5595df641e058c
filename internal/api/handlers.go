package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ocrchat/internal/chat"
	"ocrchat/internal/logger"
	"ocrchat/internal/preview"
	"ocrchat/internal/validation"
)

// Handler wires HTTP routes to the chat sessions. It is the stand-in for
// the browser UI boundary: file picker, keys dialog, send control.
type Handler struct {
	sessions *chat.Manager
	previews *preview.Registry
	fileBase string
}

// NewHandler constructs a Handler instance.
func NewHandler(sessions *chat.Manager, previews *preview.Registry, fileBase string) *Handler {
	return &Handler{
		sessions: sessions,
		previews: previews,
		fileBase: fileBase,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine, authToken string) {
	router.GET("/health", h.health)
	router.Use(AuthMiddleware(authToken))

	api := router.Group("/api")
	api.GET("/previews/:token", h.servePreview)
	api.POST("/sessions", h.createSession)

	sessionRoutes := api.Group("/sessions/:id")
	sessionRoutes.DELETE("", h.closeSession)
	sessionRoutes.GET("/messages", h.listMessages)
	sessionRoutes.POST("/messages", h.submitMessage)
	sessionRoutes.GET("/attachment", h.getAttachment)
	sessionRoutes.POST("/attachment", h.uploadAttachment)
	sessionRoutes.DELETE("/attachment", h.clearAttachment)
	sessionRoutes.PUT("/attachment/keys", h.setAttachmentKeys)
	sessionRoutes.DELETE("/attachment/keys", h.cancelKeysEditing)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) session(c *gin.Context) (*chat.Session, bool) {
	sess, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

func (h *Handler) createSession(c *gin.Context) {
	sess := h.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{
		"id":         sess.Meta.ID,
		"created_at": sess.Meta.CreatedAt,
	})
}

func (h *Handler) closeSession(c *gin.Context) {
	if !h.sessions.Close(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMessages(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	messages := sess.Log.All()
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// uploadAttachment is the file-picker boundary. The candidate is checked
// before any resource is created; rejected uploads leave the attachment
// state untouched so the same file can be re-selected.
func (h *Handler) uploadAttachment(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	mediaType := file.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = sniffContentType(file)
	}
	if !validation.IsAcceptedType(mediaType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": chat.NoticeUnsupportedType})
		return
	}
	if !validation.IsWithinSizeLimit(file.Size) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": chat.NoticeFileTooLarge})
		return
	}

	fileName := filepath.Base(file.Filename)
	destDir := filepath.Join(h.fileBase, sess.Meta.ID)
	destPath := filepath.Join(destDir, uuid.NewString()+"_"+fileName)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create directory failed"})
		return
	}
	if err := c.SaveUploadedFile(file, destPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
		return
	}

	err = sess.State.SelectFile(chat.FileCandidate{
		FileName:   fileName,
		MediaType:  mediaType,
		Size:       file.Size,
		StoredPath: destPath,
	})
	if err != nil {
		_ = os.Remove(destPath)
		switch {
		case errors.Is(err, chat.ErrUnsupportedType):
			c.JSON(http.StatusBadRequest, gin.H{"error": chat.NoticeUnsupportedType})
		case errors.Is(err, chat.ErrFileTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": chat.NoticeFileTooLarge})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	att, _ := sess.State.Attachment()
	logger.WithFields(logrus.Fields{
		"session_id": sess.Meta.ID,
		"file_name":  att.FileName,
		"file_type":  att.MediaType,
		"size":       att.Size,
	}).Info("attachment selected")

	resp := gin.H{
		"file_name":        att.FileName,
		"file_type":        att.MediaType,
		"size":             att.Size,
		"keys_dialog_open": sess.State.DialogOpen(),
	}
	if att.Preview != nil {
		resp["preview_url"] = att.Preview.URL()
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) getAttachment(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	att, ok := sess.State.Attachment()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attachment pending"})
		return
	}
	resp := gin.H{
		"file_name": att.FileName,
		"file_type": att.MediaType,
		"size":      att.Size,
		"keys":      att.Keys,
	}
	if att.Preview != nil {
		resp["preview_url"] = att.Preview.URL()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) clearAttachment(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.State.Clear()
	c.Status(http.StatusNoContent)
}

type keyPayload struct {
	Key string `json:"key" binding:"required"`
}

type setKeysRequest struct {
	Keys []keyPayload `json:"keys" binding:"required,min=1,dive"`
}

// setAttachmentKeys is the keys-dialog confirm action: it replays the
// client's rows through the editor and submits them.
func (h *Handler) setAttachmentKeys(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req setKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !sess.State.HasAttachment() {
		c.JSON(http.StatusConflict, gin.H{"error": "no attachment pending"})
		return
	}

	ed := sess.State.OpenKeysEditor()
	for ed.Len() < len(req.Keys) {
		ed.AddRow()
	}
	for ed.Len() > len(req.Keys) {
		if err := ed.RemoveRow(ed.Len() - 1); err != nil {
			break
		}
	}
	for i := range req.Keys {
		_ = ed.SetRow(i, req.Keys[i].Key)
	}

	draft, err := ed.Submit()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	att, _ := sess.State.Attachment()
	c.JSON(http.StatusOK, gin.H{
		"keys":  att.Keys,
		"draft": draft,
	})
}

// cancelKeysEditing closes the keys dialog without touching the pending
// attachment.
func (h *Handler) cancelKeysEditing(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if sess.State.HasAttachment() {
		sess.State.OpenKeysEditor().Cancel()
	} else {
		sess.State.CloseDialog()
	}
	c.Status(http.StatusNoContent)
}

type submitRequest struct {
	Text string `json:"text"`
}

func (h *Handler) submitMessage(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := sess.Orc.Submit(c.Request.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrSubmissionInFlight):
			c.JSON(http.StatusConflict, gin.H{"error": "a submission is already in flight"})
		case errors.Is(err, chat.ErrMissingKeys):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": chat.NoticeMissingKeys})
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": chat.NoticeEmptyMessage})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// sniffContentType falls back to content sniffing when the client did
// not declare a media type for the upload.
func sniffContentType(file *multipart.FileHeader) string {
	f, err := file.Open()
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}

func (h *Handler) servePreview(c *gin.Context) {
	storedPath, mediaType, ok := h.previews.Open(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}
	c.Header("Content-Type", mediaType)
	c.File(storedPath)
}
