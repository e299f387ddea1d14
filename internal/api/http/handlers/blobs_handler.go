package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerdesk/ledgerdesk/internal/contentstore"
	apperrors "github.com/ledgerdesk/ledgerdesk/pkg/util/errorutil"
)

// BlobsHandler serves the content-addressed blob store.
type BlobsHandler struct {
	remote contentstore.Remote
}

// NewBlobsHandler constructs handler.
func NewBlobsHandler(remote contentstore.Remote) *BlobsHandler {
	return &BlobsHandler{remote: remote}
}

// Put PUT /blobs. The digest is derived from the body, so repeated uploads
// of the same bytes are idempotent.
func (h *BlobsHandler) Put(c *fiber.Ctx) error {
	data := append([]byte(nil), c.Body()...)
	digest := contentstore.Digest(data)
	if err := h.remote.Put(c.UserContext(), digest, data); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"digest": digest})
}

// Get GET /blobs/:digest.
func (h *BlobsHandler) Get(c *fiber.Ctx) error {
	digest := c.Params("digest")
	if !contentstore.IsDigest(digest) {
		return apperrors.NewValidationError("invalid digest", map[string]any{"digest": digest})
	}
	data, err := h.remote.Get(c.UserContext(), digest)
	if errors.Is(err, contentstore.ErrNotFound) {
		return apperrors.NewNotFound("blob", map[string]any{"digest": digest})
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(data)
}
