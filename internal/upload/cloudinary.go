package upload

import (
	"context"
	"errors"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryBackend uploads to Cloudinary and returns the asset's secure URL.
type CloudinaryBackend struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryBackend configures the client from a cloudinary:// URL.
func NewCloudinaryBackend(url string) (*CloudinaryBackend, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, err
	}
	return &CloudinaryBackend{cld: cld}, nil
}

func (b *CloudinaryBackend) Name() string { return "cloudinary" }

func (b *CloudinaryBackend) Put(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	resp, err := b.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       opts.Folder,
		ResourceType: "image",
	})
	if err != nil {
		return nil, err
	}
	if resp.Error.Message != "" {
		return nil, errors.New(resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return nil, errors.New("cloudinary returned no secure_url")
	}
	return &Result{URL: resp.SecureURL, PublicID: resp.PublicID, Bytes: resp.Bytes}, nil
}
