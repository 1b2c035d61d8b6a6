// Package evidence issues upload slots for payment receipts. The object key
// doubles as the opaque receipt reference stored on payments.
package evidence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
)

const maxUploadBytes = 10 * 1024 * 1024

type signer interface {
	SignedURL(bucket, object, contentType string, expires time.Duration) (string, error)
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
}

// Service presigns receipt uploads and downloads.
type Service interface {
	Presign(ctx context.Context, studentID uuid.UUID, input PresignInput) (*PresignOutput, error)
	ReadURL(ctx context.Context, receiptRef string) (*ReadOutput, error)
}

// PresignInput describes the receipt file a student is about to upload.
type PresignInput struct {
	FileName  string
	MimeType  string
	SizeBytes int64
}

// PresignOutput carries the signed PUT URL and the reference to submit with the payment.
type PresignOutput struct {
	ReceiptRef   string    `json:"receiptRef"`
	SignedPUTURL string    `json:"signedPutUrl"`
	ContentType  string    `json:"contentType"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ReadOutput is a short-lived download link for a stored receipt.
type ReadOutput struct {
	ReceiptRef string    `json:"receiptRef"`
	SignedURL  string    `json:"signedUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ServiceParams wires evidence storage.
type ServiceParams struct {
	Signer      signer
	Bucket      string
	Prefix      string
	UploadTTL   time.Duration
	DownloadTTL time.Duration
	Now         func() time.Time
}

type service struct {
	signer      signer
	bucket      string
	prefix      string
	uploadTTL   time.Duration
	downloadTTL time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Signer == nil {
		return nil, fmt.Errorf("gcs signer required")
	}
	if strings.TrimSpace(params.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	if params.UploadTTL <= 0 {
		params.UploadTTL = 15 * time.Minute
	}
	if params.DownloadTTL <= 0 {
		params.DownloadTTL = time.Hour
	}
	prefix := strings.Trim(strings.TrimSpace(params.Prefix), "/")
	if prefix == "" {
		prefix = "evidence"
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		signer:      params.Signer,
		bucket:      params.Bucket,
		prefix:      prefix,
		uploadTTL:   params.UploadTTL,
		downloadTTL: params.DownloadTTL,
		now:         params.Now,
	}, nil
}

func (s *service) Presign(ctx context.Context, studentID uuid.UUID, input PresignInput) (*PresignOutput, error) {
	if studentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student identity missing")
	}

	fileName := sanitizeFileName(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file_name is required")
	}
	if input.SizeBytes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size_bytes must be positive")
	}
	if input.SizeBytes > maxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("size_bytes must be at most %d bytes", maxUploadBytes))
	}

	mimeType, err := normalizeMimeType(input.MimeType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mime_type")
	}
	if !isAllowedMime(mimeType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipts must be PDF or image files").
			WithDetails(map[string]any{"allowed": allowedMimeTypes})
	}

	ref := fmt.Sprintf("%s/%s/%s/%s", s.prefix, studentID.String(), uuid.NewString(), fileName)
	expiresAt := s.now().UTC().Add(s.uploadTTL)
	signedURL, err := s.signer.SignedURL(s.bucket, ref, mimeType, s.uploadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign upload url")
	}

	return &PresignOutput{
		ReceiptRef:   ref,
		SignedPUTURL: signedURL,
		ContentType:  mimeType,
		ExpiresAt:    expiresAt,
	}, nil
}

// ReadURL signs a download link for a reference this service issued.
func (s *service) ReadURL(ctx context.Context, receiptRef string) (*ReadOutput, error) {
	ref := strings.TrimSpace(receiptRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no receipt on file")
	}
	if !strings.HasPrefix(ref, s.prefix+"/") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt reference is not stored evidence")
	}

	signedURL, err := s.signer.SignedReadURL(s.bucket, ref, s.downloadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign download url")
	}
	return &ReadOutput{
		ReceiptRef: ref,
		SignedURL:  signedURL,
		ExpiresAt:  s.now().UTC().Add(s.downloadTTL),
	}, nil
}
