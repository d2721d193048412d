package api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/gofiber/fiber/v2"
	gonanoid "github.com/jaevor/go-nanoid"
)

const maxExtensionLength = 10

func newUploadIDGenerator() (func() string, error) {
	gen, err := gonanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload id generator: %w", err)
	}
	return gen, nil
}

// uploadFile handles POST /upload-file. The file is stored under a random
// name and announced to the room as a file message.
func (m *APIModule) uploadFile(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Multipart field 'file' is required",
		})
	}

	maxBytes := int64(m.upload.MaxSizeMB) * 1024 * 1024
	if header.Size > maxBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
			Error:   "file_too_large",
			Message: fmt.Sprintf("File size exceeds maximum of %d MB", m.upload.MaxSizeMB),
		})
	}

	room, err := domain.NormalizeRoom(c.FormValue("room"))
	if err != nil {
		return badRequest(c, err)
	}
	username, err := domain.NormalizeUsername(c.FormValue("username"))
	if err != nil {
		return badRequest(c, err)
	}

	name := m.newUploadID() + safeExtension(header.Filename)
	path := filepath.Join(m.upload.Dir, name)
	if err := c.SaveFile(header, path); err != nil {
		return serviceError(c, "upload_failed", "Failed to store file", err)
	}

	att := domain.FileAttachment{
		URL:      "/uploads/" + name,
		Original: filepath.Base(header.Filename),
		Size:     header.Size,
	}
	msg, err := m.chat.ShareUpload(c.UserContext(), username, room, att)
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, domain.ErrInvalidInput) {
			return badRequest(c, err)
		}
		return serviceError(c, "upload_failed", "Failed to share file", err)
	}

	return c.Status(fiber.StatusCreated).JSON(UploadResponse{
		ID:       msg.ID,
		URL:      att.URL,
		Original: msg.Attachment.Original,
		Size:     att.Size,
		Room:     room,
	})
}

// safeExtension keeps a short alphanumeric extension of filename.
func safeExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > maxExtensionLength {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
