package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/middleware"
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/service"
	"github.com/clipsyncapp/api-clipsync/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Per-kind declared-size caps
const (
	maxThumbSize = 20 << 20  // 20MB
	maxFileSize  = 500 << 20 // 500MB

	// headroom for the metadata fields around the binary part
	multipartOverhead = 1 << 20
)

// MediaHandler handles media listing, upload, raw fetch and receipts
type MediaHandler struct {
	mediaService *service.MediaService
	locks        *service.UploadLocks
	blobs        storage.BlobStore
}

func NewMediaHandler(mediaService *service.MediaService, locks *service.UploadLocks, blobs storage.BlobStore) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		locks:        locks,
		blobs:        blobs,
	}
}

// List godoc
// @Summary List media
// @Description Scoped listing returns peers' media this device has not fully acknowledged. all=true returns everything unfiltered (debug).
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Param all query bool false "Unscoped listing"
// @Success 200 {array} model.Media
// @Router /medias [get]
func (h *MediaHandler) List(c *gin.Context) {
	accountID := c.MustGet(middleware.CtxAccountID).(uuid.UUID)
	linkID := c.MustGet(middleware.CtxLinkID).(uuid.UUID)
	all := c.Query("all") == "true"

	medias, err := h.mediaService.ListMedias(accountID, linkID, all)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to list media"})
		return
	}
	c.JSON(http.StatusOK, medias)
}

// Upload godoc
// @Summary Upload a media blob (file or thumb)
// @Description Multipart upload. Fields path, dir, mod, size (cre optional) must precede the binary part. Exactly one upload per (media, kind) may be in flight; a concurrent duplicate is rejected with 409, as is a re-upload of a completed blob. A missing field or a declared-size mismatch fails closed: the partial blob is deleted.
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Media UUID"
// @Param kind path string true "file or thumb"
// @Success 201 {object} model.Media
// @Failure 403 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 422 {object} model.ValidationErrorResponse
// @Router /medias/{id}/{kind} [post]
func (h *MediaHandler) Upload(c *gin.Context) {
	mediaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Media id must be a UUID"})
		return
	}
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Kind must be file or thumb"})
		return
	}

	installationID := c.MustGet(middleware.CtxInstallationID).(uuid.UUID)
	accountID := c.MustGet(middleware.CtxAccountID).(uuid.UUID)

	if err := h.mediaService.CheckUploadAllowed(mediaID, installationID, kind); err != nil {
		respondError(c, err)
		return
	}

	// Single writer per (media, kind); losers are rejected, never queued.
	if !h.locks.Acquire(mediaID, kind) {
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "Upload already in flight"})
		return
	}
	defer h.locks.Release(mediaID, kind)

	sizeCap := int64(maxFileSize)
	if kind == model.MediaKindThumb {
		sizeCap = maxThumbSize
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sizeCap+multipartOverhead)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Multipart body required", Message: err.Error()})
		return
	}

	fields := make(map[string]string)
	var declaredSize int64
	stored := false

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.failClosed(c, mediaID, kind, stored, http.StatusUnprocessableEntity, "Malformed multipart body")
			return
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, 4096))
			if err != nil {
				h.failClosed(c, mediaID, kind, stored, http.StatusUnprocessableEntity, "Unreadable form field")
				return
			}
			fields[part.FormName()] = string(value)
			continue
		}

		// Binary part: every required field must have arrived by now.
		missing := missingFields(fields)
		if len(missing) > 0 {
			c.JSON(http.StatusUnprocessableEntity, model.ValidationErrorResponse{
				Error:  "Missing required fields",
				Fields: fieldErrors(missing),
			})
			return
		}
		declaredSize, err = strconv.ParseInt(fields["size"], 10, 64)
		if err != nil || declaredSize <= 0 {
			c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "size must be a positive integer"})
			return
		}
		if declaredSize > sizeCap {
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "Declared size exceeds the cap for this kind"})
			return
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(fields["path"]))
		}

		if err := h.blobs.Put(c.Request.Context(), mediaID.String(), string(kind), part, declaredSize, contentType); err != nil {
			h.failClosed(c, mediaID, kind, true, http.StatusUnprocessableEntity, "Body shorter than declared size")
			return
		}
		// Longer-than-declared bodies are a mismatch too.
		var one [1]byte
		if n, _ := part.Read(one[:]); n > 0 {
			h.failClosed(c, mediaID, kind, true, http.StatusUnprocessableEntity, "Body longer than declared size")
			return
		}
		stored = true
	}

	if !stored {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Binary part missing"})
		return
	}

	params, err := buildParams(mediaID, installationID, fields)
	if err != nil {
		h.failClosed(c, mediaID, kind, true, http.StatusUnprocessableEntity, err.Error())
		return
	}

	media, err := h.mediaService.RecordDataAdded(accountID, params, kind)
	if err != nil {
		h.failClosed(c, mediaID, kind, true, http.StatusInternalServerError, "Failed to record upload")
		return
	}
	c.JSON(http.StatusCreated, media)
}

// Raw godoc
// @Summary Fetch a media blob
// @Tags Media
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Media UUID"
// @Param kind path string true "file or thumb"
// @Success 200 {file} binary
// @Failure 403 {object} model.ErrorResponse
// @Router /medias/{id}/{kind}/raw [get]
func (h *MediaHandler) Raw(c *gin.Context) {
	mediaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Media id must be a UUID"})
		return
	}
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Kind must be file or thumb"})
		return
	}

	accountID := c.MustGet(middleware.CtxAccountID).(uuid.UUID)

	media, err := h.mediaService.GetMedia(mediaID)
	if err != nil {
		respondError(c, err)
		return
	}
	visible, err := h.mediaService.VisibleToAccount(mediaID, accountID)
	if err != nil || !visible {
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "Forbidden"})
		return
	}
	if (kind == model.MediaKindFile && !media.HasFile) || (kind == model.MediaKindThumb && !media.HasThumb) {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Blob not uploaded yet"})
		return
	}

	reader, contentType, err := h.blobs.Get(c.Request.Context(), mediaID.String(), string(kind))
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to open blob"})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, media.Size, contentType, reader, nil)
}

// SaveReceipt godoc
// @Summary Acknowledge fetched blobs for this device
// @Description Upsert on (media, link). Omitted fields keep their prior value; a first insert defaults them to false.
// @Tags Media
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Media UUID"
// @Param body body model.SaveReceiptRequest true "Receipt"
// @Success 200 {object} model.MediaReceipt
// @Router /medias/{id}/receipts [post]
func (h *MediaHandler) SaveReceipt(c *gin.Context) {
	mediaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Media id must be a UUID"})
		return
	}

	var req model.SaveReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	linkID := c.MustGet(middleware.CtxLinkID).(uuid.UUID)
	receipt, err := h.mediaService.SaveReceipt(mediaID, linkID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// NextRequest godoc
// @Summary Poll the oldest outstanding media request for this device
// @Description Requests survive on the server until fulfilled or abandoned; devices poll here to recover requests they missed or dropped.
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.MediaRequest
// @Success 204 "Queue is empty"
// @Router /media_requests/next [get]
func (h *MediaHandler) NextRequest(c *gin.Context) {
	installationID := c.MustGet(middleware.CtxInstallationID).(uuid.UUID)

	req, err := h.mediaService.OldestRequest(installationID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// AbandonRequest godoc
// @Summary Abandon requests this device cannot fulfil
// @Description Deletes the device's outstanding requests for the media, so an unfulfillable request is not re-served forever.
// @Tags Media
// @Security BearerAuth
// @Param media_id path string true "Media UUID"
// @Success 204
// @Router /media_requests/{media_id} [delete]
func (h *MediaHandler) AbandonRequest(c *gin.Context) {
	mediaID, err := uuid.Parse(c.Param("media_id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Media id must be a UUID"})
		return
	}
	installationID := c.MustGet(middleware.CtxInstallationID).(uuid.UUID)

	if err := h.mediaService.AbandonRequest(mediaID, installationID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// failClosed deletes any partially written blob before responding, so a
// rejected upload never leaves the object behind.
func (h *MediaHandler) failClosed(c *gin.Context, mediaID uuid.UUID, kind model.MediaKind, wrote bool, status int, msg string) {
	if wrote {
		_ = h.blobs.Remove(c.Request.Context(), mediaID.String(), string(kind))
	}
	c.JSON(status, model.ErrorResponse{Error: msg})
}

func parseKind(raw string) (model.MediaKind, bool) {
	switch strings.ToLower(raw) {
	case "file":
		return model.MediaKindFile, true
	case "thumb":
		return model.MediaKindThumb, true
	default:
		return "", false
	}
}

func missingFields(fields map[string]string) []string {
	var missing []string
	for _, name := range []string{"path", "dir", "mod", "size"} {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func fieldErrors(missing []string) []model.FieldError {
	out := make([]model.FieldError, 0, len(missing))
	for _, f := range missing {
		out = append(out, model.FieldError{Field: f, Errors: []string{"required"}})
	}
	return out
}

// buildParams converts the multipart metadata fields. Timestamps are unix
// milliseconds.
func buildParams(mediaID, installationID uuid.UUID, fields map[string]string) (service.DataAddedParams, error) {
	mod, err := strconv.ParseInt(fields["mod"], 10, 64)
	if err != nil {
		return service.DataAddedParams{}, service.NewValidationError("mod", "must be unix milliseconds")
	}
	size, _ := strconv.ParseInt(fields["size"], 10, 64)

	params := service.DataAddedParams{
		MediaID:        mediaID,
		Path:           fields["path"],
		Dir:            fields["dir"],
		ModifiedTime:   time.UnixMilli(mod),
		Size:           size,
		MediaType:      mime.TypeByExtension(filepath.Ext(fields["path"])),
		InstallationID: installationID,
	}
	if raw := fields["cre"]; raw != "" {
		cre, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return service.DataAddedParams{}, service.NewValidationError("cre", "must be unix milliseconds")
		}
		t := time.UnixMilli(cre)
		params.CreatedTime = &t
	}
	return params, nil
}
