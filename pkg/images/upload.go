package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var errEmptyBody = errors.New("empty response body")

type contentTypeError struct{ got string }

func (e *contentTypeError) Error() string { return "unexpected content type " + e.got }

// UploadOptions control how the object store stores an image.
type UploadOptions struct {
	Format    string
	Overwrite bool
}

// Uploader stores an image under key and returns its stable URL.
type Uploader interface {
	UploadImage(ctx context.Context, data []byte, key string, opts UploadOptions) (string, error)
}

// CloudinaryUploader stores images in a Cloudinary account.
type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryUploader reads credentials from a cloudinary:// URL.
func NewCloudinaryUploader(cloudinaryURL string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryUploader{cld: cld}, nil
}

func (c *CloudinaryUploader) UploadImage(ctx context.Context, data []byte, key string, opts UploadOptions) (string, error) {
	resp, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:       key,
		Format:         opts.Format,
		Overwrite:      api.Bool(opts.Overwrite),
		UniqueFilename: api.Bool(false),
		ResourceType:   "image",
	})
	if err != nil {
		return "", err
	}
	if resp.Error.Message != "" {
		return "", errors.New(resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", errors.New("upload returned no url")
	}
	return resp.SecureURL, nil
}

// ObjectKey builds a stable object key so re-runs overwrite the same object.
func ObjectKey(folder, reference, suffix string) string {
	name := strings.ToLower(strings.Join(strings.Fields(reference), "-"))
	name = strings.NewReplacer("/", "-", "\\", "-", "?", "", "#", "", "&", "").Replace(name)
	if suffix != "" {
		name += "-" + suffix
	}
	if folder == "" {
		return name
	}
	return strings.Trim(folder, "/") + "/" + name
}
