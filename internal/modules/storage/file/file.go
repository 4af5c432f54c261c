package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/agentbrowse/core/internal/config"
	"github.com/agentbrowse/core/internal/middleware"
	"github.com/agentbrowse/core/internal/models"
	"github.com/agentbrowse/core/internal/pkg/pagination"
	"github.com/agentbrowse/core/internal/pkg/response"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxUploadBytes  = 25 << 20
	textPreviewRune = 500
)

// UploadResult is the analysis returned after an upload: where the file
// landed plus a quick look inside it.
type UploadResult struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
	URL         string `json:"url"`
	RemoteURL   string `json:"remoteUrl,omitempty"`
	TextPreview string `json:"textPreview,omitempty"`
	CSVRows     int    `json:"csvRows,omitempty"`
}

type Service struct {
	db        *gorm.DB
	staticDir string
	s3        *s3Uploader
	logger    *zap.Logger
}

func NewService(db *gorm.DB, cfg *config.AppConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Service{db: db, staticDir: cfg.StaticDir(), logger: logger}
	if cfg.S3.Enable {
		uploader, err := newS3Uploader(cfg.S3)
		if err != nil {
			logger.Warn("s3 mirror disabled", zap.Error(err))
		} else {
			svc.s3 = uploader
		}
	}
	return svc
}

// kindFor buckets a detected MIME type into a storage subdirectory.
func kindFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case mime == "application/pdf",
		strings.HasPrefix(mime, "text/"),
		strings.Contains(mime, "word"),
		strings.Contains(mime, "presentation"):
		return "document"
	case strings.Contains(mime, "csv"),
		strings.Contains(mime, "json"),
		strings.Contains(mime, "spreadsheet"),
		strings.Contains(mime, "excel"):
		return "data"
	default:
		return "misc"
	}
}

// Store writes the payload to disk, records a reference row, and
// mirrors to S3 when configured. S3 failures are logged, never fatal.
func (s *Service) Store(c *gin.Context, userID, originalName string, payload []byte) (*UploadResult, error) {
	detected := mimetype.Detect(payload)
	kind := kindFor(detected.String())

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = detected.Extension()
	}
	storedName := uuid.NewString() + ext

	dir := filepath.Join(s.staticDir, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(dir, storedName)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	ref := models.FileReferenceModel{
		UserID:    userID,
		Name:      originalName,
		Kind:      kind,
		MimeType:  detected.String(),
		SizeBytes: int64(len(payload)),
		Path:      path,
	}

	if s.s3 != nil {
		remote, err := s.s3.Upload(c.Request.Context(), kind+"/"+storedName, payload, detected.String())
		if err != nil {
			s.logger.Warn("s3 mirror upload failed", zap.String("name", originalName), zap.Error(err))
		} else {
			ref.RemoteURL = remote
		}
	}

	if err := s.db.Create(&ref).Error; err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	result := &UploadResult{
		ID:        ref.ID,
		Name:      originalName,
		Kind:      kind,
		MimeType:  detected.String(),
		SizeBytes: int64(len(payload)),
		URL:       "/api/v2/files/" + ref.ID + "/content",
		RemoteURL: ref.RemoteURL,
	}
	s.analyze(result, detected.String(), payload)
	return result, nil
}

// analyze fills in the text preview and CSV row count for inspectable
// payloads.
func (s *Service) analyze(result *UploadResult, mime string, payload []byte) {
	isText := strings.HasPrefix(mime, "text/") || strings.Contains(mime, "json")
	if !isText || !utf8.Valid(payload) {
		return
	}

	text := string(payload)
	runes := []rune(text)
	if len(runes) > textPreviewRune {
		result.TextPreview = string(runes[:textPreviewRune])
	} else {
		result.TextPreview = text
	}

	if strings.Contains(mime, "csv") {
		rows := strings.Count(strings.TrimRight(text, "\n"), "\n")
		result.CSVRows = rows + 1
	}
}

func (s *Service) get(userID, id string) (*models.FileReferenceModel, error) {
	var ref models.FileReferenceModel
	err := s.db.First(&ref, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (s *Service) List(userID string, q pagination.Query) ([]models.FileReferenceModel, response.Pagination, error) {
	tx := s.db.Model(&models.FileReferenceModel{}).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	var items []models.FileReferenceModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// Delete removes the reference row and the on-disk copy. A missing disk
// file is not an error; the row is authoritative.
func (s *Service) Delete(userID, id string) error {
	ref, err := s.get(userID, id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(ref).Error; err != nil {
		return err
	}
	if ref.Path != "" {
		if err := os.Remove(ref.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("file cleanup failed", zap.String("path", ref.Path), zap.Error(err))
		}
	}
	return nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/files", authMW)

	g.POST("/upload", h.upload)
	g.GET("", h.list)
	g.GET("/:id/content", h.content)
	g.DELETE("/:id", h.delete)
}

// POST /files/upload
func (h *Handler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.BadRequest(c, "file exceeds the 25 MB limit")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	defer f.Close()

	payload, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if len(payload) > maxUploadBytes {
		response.BadRequest(c, "file exceeds the 25 MB limit")
		return
	}

	result, err := h.svc.Store(c, middleware.CurrentUserID(c), fileHeader.Filename, payload)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, result)
}

// GET /files
func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.svc.List(middleware.CurrentUserID(c), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

// GET /files/:id/content
func (h *Handler) content(c *gin.Context) {
	ref, err := h.svc.get(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	if ref.Path == "" {
		response.NotFound(c)
		return
	}
	if _, err := os.Stat(ref.Path); err != nil {
		response.NotFound(c)
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000")
	c.FileAttachment(ref.Path, ref.Name)
}

// DELETE /files/:id
func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(middleware.CurrentUserID(c), c.Param("id")); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
