package cloudinary

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// UploadResult is what the image host hands back for one stored asset.
type UploadResult struct {
	URL      string
	PublicID string
}

// Client is the subset of Cloudinary the report flow needs.
type Client interface {
	Upload(ctx context.Context, data []byte, publicID string) (*UploadResult, error)
	UploadThumbnail(ctx context.Context, data []byte, publicID string) (*UploadResult, error)
	Destroy(ctx context.Context, publicID string) error
}

// Optimized image params for fast frontend loading
const (
	ImageWidth = 1280
	ThumbWidth = 300
)

// Eager and incoming transformations (single string per SDK)
const (
	imageTransformation = "q_auto,f_auto,w_1280,c_limit"
	thumbTransformation = "q_auto,f_auto,w_300,h_300,c_fill,g_auto"
)

// BuildOptimizedImageURL returns a Cloudinary URL with transformations for optimized delivery.
func BuildOptimizedImageURL(cloudName, publicID string, width int) string {
	if width <= 0 {
		width = ImageWidth
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/q_auto,f_auto,w_%d,c_fill/%s",
		cloudName, width, publicID)
}

// ThumbnailPublicID derives the thumbnail asset id from the original's.
func ThumbnailPublicID(publicID string) string {
	return publicID + "_thumb"
}

type clientImpl struct {
	cloudName string
	folder    string
	uploader  *uploader.API
}

func (c *clientImpl) upload(ctx context.Context, data []byte, publicID, transformation string) (*UploadResult, error) {
	overwrite := false
	result, err := c.uploader.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:         c.folder,
		PublicID:       publicID,
		Transformation: transformation,
		Overwrite:      &overwrite,
		ResourceType:   "image",
	})
	if err != nil {
		return nil, err
	}
	if result.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary: %s", result.Error.Message)
	}
	return &UploadResult{URL: result.SecureURL, PublicID: result.PublicID}, nil
}

// Upload stores the original image, capped in width and re-encoded.
func (c *clientImpl) Upload(ctx context.Context, data []byte, publicID string) (*UploadResult, error) {
	return c.upload(ctx, data, publicID, imageTransformation)
}

// UploadThumbnail stores a square thumbnail next to the original.
func (c *clientImpl) UploadThumbnail(ctx context.Context, data []byte, publicID string) (*UploadResult, error) {
	return c.upload(ctx, data, ThumbnailPublicID(publicID), thumbTransformation)
}

// Destroy removes an asset and its thumbnail. Missing assets are not an error.
func (c *clientImpl) Destroy(ctx context.Context, publicID string) error {
	for _, id := range []string{publicID, ThumbnailPublicID(publicID)} {
		res, err := c.uploader.Destroy(ctx, uploader.DestroyParams{PublicID: c.qualify(id)})
		if err != nil {
			return err
		}
		if res.Error.Message != "" {
			return fmt.Errorf("cloudinary destroy %s: %s", id, res.Error.Message)
		}
	}
	return nil
}

// qualify prefixes the folder unless publicID already carries it.
func (c *clientImpl) qualify(publicID string) string {
	if c.folder == "" || len(publicID) > len(c.folder) && publicID[:len(c.folder)+1] == c.folder+"/" {
		return publicID
	}
	return c.folder + "/" + publicID
}

// NewClientFromParams builds a Client from Cloudinary cloud name, API key, and secret.
func NewClientFromParams(cloudName, apiKey, apiSecret, folder string) (Client, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{
		cloudName: cloudName,
		folder:    folder,
		uploader:  up,
	}, nil
}
