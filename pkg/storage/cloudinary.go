package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const cloudinaryRawResource = "raw"

var versionSegment = regexp.MustCompile(`^v\d+$`)

// cloudinaryAPI is the subset of the Cloudinary upload API used here.
type cloudinaryAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// CloudinaryStorage keeps documents as raw Cloudinary assets.
type CloudinaryStorage struct {
	api    cloudinaryAPI
	folder string
}

// NewCloudinaryStorage builds a store from a cloudinary:// URL.
func NewCloudinaryStorage(cloudinaryURL, folder string) (*CloudinaryStorage, error) {
	client, err := cld.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryStorage{api: &client.Upload, folder: strings.Trim(folder, "/")}, nil
}

// Put uploads r and returns the asset's secure URL.
func (s *CloudinaryStorage) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	dir, file := path.Split(strings.Trim(key, "/"))
	res, err := s.api.Upload(ctx, r, uploader.UploadParams{
		Folder:       path.Join(s.folder, dir),
		PublicID:     file,
		ResourceType: cloudinaryRawResource,
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

// Delete destroys the asset referenced by its secure URL.
func (s *CloudinaryStorage) Delete(ctx context.Context, ref string) error {
	publicID, err := publicIDFromURL(ref)
	if err != nil {
		return err
	}
	res, err := s.api.Destroy(ctx, uploader.DestroyParams{PublicID: publicID, ResourceType: cloudinaryRawResource})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	return nil
}

// publicIDFromURL extracts the public id from
// https://res.cloudinary.com/<cloud>/raw/upload/v<version>/<public id>.
func publicIDFromURL(ref string) (string, error) {
	idx := strings.Index(ref, "/upload/")
	if !IsRemote(ref) || idx < 0 {
		return "", fmt.Errorf("not a cloudinary url: %q", ref)
	}
	rest := strings.Split(ref[idx+len("/upload/"):], "/")
	if len(rest) > 1 && versionSegment.MatchString(rest[0]) {
		rest = rest[1:]
	}
	publicID := strings.Join(rest, "/")
	if publicID == "" {
		return "", fmt.Errorf("not a cloudinary url: %q", ref)
	}
	return publicID, nil
}
