package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var errUploadsDisabled = errors.New("file uploads are not configured")

// fileUploader stores files and returns their public URL.
type fileUploader interface {
	Upload(ctx context.Context, file io.Reader, folder, publicID string) (string, error)
	Destroy(ctx context.Context, fileURL string) error
}

type cloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

func (c *cloudinaryUploader) Upload(ctx context.Context, file io.Reader, folder, publicID string) (string, error) {
	resp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:    folder,
		PublicID:  publicID,
		Overwrite: api.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.SecureURL == "" {
		return "", errors.New("cloudinary upload: no url returned")
	}
	return resp.SecureURL, nil
}

func (c *cloudinaryUploader) Destroy(ctx context.Context, fileURL string) error {
	// Extract the public ID from the file URL
	publicID, err := extractPublicIDFromURL(fileURL)
	if err != nil {
		return fmt.Errorf("failed to extract public ID: %w", err)
	}

	_, err = c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: publicID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from Cloudinary: %w", err)
	}
	return nil
}

// Helper function to extract the public ID from the Cloudinary URL
func extractPublicIDFromURL(fileURL string) (string, error) {
	parsedURL, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	pathParts := strings.Split(parsedURL.Path, "/")
	for i, part := range pathParts {
		if part == "upload" && i+1 < len(pathParts) {
			rest := pathParts[i+1:]
			// skip the version segment (v1712345678)
			if len(rest) > 1 && strings.HasPrefix(rest[0], "v") {
				rest = rest[1:]
			}
			id := strings.Join(rest, "/")
			if dot := strings.LastIndex(id, "."); dot > 0 {
				id = id[:dot]
			}
			return id, nil
		}
	}

	return "", errors.New("failed to extract public ID from URL")
}

type noUploader struct{}

func (noUploader) Upload(context.Context, io.Reader, string, string) (string, error) {
	return "", errUploadsDisabled
}

func (noUploader) Destroy(context.Context, string) error { return nil }

const maxUploadBytes = 5 << 20 // 5 MB

var documentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// formFile pulls one document (JPEG, PNG or PDF) from a multipart request.
// The caller closes the returned file.
func formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<10)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("unable to parse form, file size limit is 5MB")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve file %q", field)
	}
	if !documentTypes[header.Header.Get("Content-Type")] {
		file.Close()
		return nil, fmt.Errorf("only JPEG, PNG and PDF files are allowed")
	}
	return file, nil
}
