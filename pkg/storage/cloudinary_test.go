package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/require"
)

type cloudinaryStub struct {
	uploadParams  uploader.UploadParams
	destroyParams uploader.DestroyParams
	secureURL     string
}

func (s *cloudinaryStub) Upload(_ context.Context, _ interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	s.uploadParams = params
	return &uploader.UploadResult{SecureURL: s.secureURL}, nil
}

func (s *cloudinaryStub) Destroy(_ context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error) {
	s.destroyParams = params
	return &uploader.DestroyResult{Result: "ok"}, nil
}

func TestCloudinaryStoragePutAndDelete(t *testing.T) {
	stub := &cloudinaryStub{secureURL: "https://res.cloudinary.com/demo/raw/upload/v1712/swebuk/fyp/u1/f1/proposal/doc.pdf"}
	store := &CloudinaryStorage{api: stub, folder: "swebuk"}

	ref, err := store.Put(context.Background(), "fyp/u1/f1/proposal/doc.pdf", strings.NewReader("x"), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, stub.secureURL, ref)
	require.Equal(t, "swebuk/fyp/u1/f1/proposal", stub.uploadParams.Folder)
	require.Equal(t, "doc.pdf", stub.uploadParams.PublicID)
	require.Equal(t, "raw", stub.uploadParams.ResourceType)

	require.NoError(t, store.Delete(context.Background(), ref))
	require.Equal(t, "swebuk/fyp/u1/f1/proposal/doc.pdf", stub.destroyParams.PublicID)
}

func TestPublicIDFromURL(t *testing.T) {
	id, err := publicIDFromURL("https://res.cloudinary.com/demo/raw/upload/a/b.pdf")
	require.NoError(t, err)
	require.Equal(t, "a/b.pdf", id)

	_, err = publicIDFromURL("fyp/u1/doc.pdf")
	require.Error(t, err)
}
