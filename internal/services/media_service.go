package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cuakstore/api/internal/platform/storage"
	"github.com/cuakstore/api/internal/repositories"
)

const (
	maxProductImageBytes = int64(10 << 20)
	uploadTicketExpiry   = 15 * time.Minute
)

var productImageContentTypes = []string{"image/png", "image/jpeg", "image/webp"}

var (
	// ErrMediaInvalidInput signals invalid upload or attach parameters.
	ErrMediaInvalidInput = errors.New("media: invalid input")
	// ErrMediaStorage wraps failures from the object storage backend.
	ErrMediaStorage = errors.New("media: storage error")
)

// signedURLIssuer abstracts storage.Client for easier testing.
type signedURLIssuer interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// objectCopier abstracts storage.Copier for easier testing.
type objectCopier interface {
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
}

// MediaServiceConfig locates the media bucket and the public URL it is served from.
type MediaServiceConfig struct {
	Bucket        string
	PublicBaseURL string
}

// MediaServiceDeps bundles constructor inputs for the media service.
type MediaServiceDeps struct {
	Products    repositories.ProductRepository
	Signer      signedURLIssuer
	Copier      objectCopier
	Config      MediaServiceConfig
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type mediaService struct {
	products repositories.ProductRepository
	signer   signedURLIssuer
	copier   objectCopier
	config   MediaServiceConfig
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewMediaService constructs the media service with the supplied dependencies.
func NewMediaService(deps MediaServiceDeps) (MediaService, error) {
	if deps.Products == nil {
		return nil, errors.New("media service: product repository is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("media service: signed url issuer is required")
	}
	if deps.Copier == nil {
		return nil, errors.New("media service: object copier is required")
	}
	if strings.TrimSpace(deps.Config.Bucket) == "" {
		return nil, errors.New("media service: bucket is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &mediaService{
		products: deps.Products,
		signer:   deps.Signer,
		copier:   deps.Copier,
		config:   deps.Config,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// IssueProductImageUpload signs a PUT against the staging path. The object is
// only promoted to the product once AttachProductImage confirms the upload.
func (s *mediaService) IssueProductImageUpload(ctx context.Context, cmd ProductImageUploadCommand) (ProductImageUploadTicket, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	fileName := strings.TrimSpace(cmd.FileName)
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if productID == "" {
		return ProductImageUploadTicket{}, fmt.Errorf("%w: product id is required", ErrMediaInvalidInput)
	}
	if fileName == "" {
		return ProductImageUploadTicket{}, fmt.Errorf("%w: file name is required", ErrMediaInvalidInput)
	}
	if !contentTypeSupported(contentType) {
		return ProductImageUploadTicket{}, fmt.Errorf("%w: content type %q is not supported", ErrMediaInvalidInput, contentType)
	}
	if cmd.SizeBytes <= 0 || cmd.SizeBytes > maxProductImageBytes {
		return ProductImageUploadTicket{}, fmt.Errorf("%w: size must be between 1 and %d bytes", ErrMediaInvalidInput, maxProductImageBytes)
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return ProductImageUploadTicket{}, mapCatalogRepositoryError(err)
	}

	uploadID := s.newID()
	objectPath, err := storage.BuildObjectPath(storage.PurposeUploadStaging, storage.PathParams{
		UploadID: uploadID,
		FileName: fileName,
	})
	if err != nil {
		return ProductImageUploadTicket{}, fmt.Errorf("%w: %v", ErrMediaInvalidInput, err)
	}

	result, err := s.signer.SignedURL(ctx, s.config.Bucket, objectPath, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:              "PUT",
			ContentType:         contentType,
			AllowedContentTypes: productImageContentTypes,
			MaxSize:             cmd.SizeBytes,
			ExpiresIn:           uploadTicketExpiry,
		},
	})
	if err != nil {
		return ProductImageUploadTicket{}, fmt.Errorf("%w: %v", ErrMediaStorage, err)
	}

	s.logger(ctx, "media.upload.issued", map[string]any{
		"productId": productID,
		"uploadId":  uploadID,
		"object":    objectPath,
	})

	return ProductImageUploadTicket{
		UploadID:   uploadID,
		URL:        result.URL,
		Method:     result.Method,
		Headers:    result.Headers,
		ObjectPath: objectPath,
		ExpiresAt:  result.ExpiresAt,
	}, nil
}

// AttachProductImage copies the staged object into the product's canonical
// image path and records the public URL on the product.
func (s *mediaService) AttachProductImage(ctx context.Context, cmd AttachProductImageCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	uploadID := strings.TrimSpace(cmd.UploadID)
	fileName := strings.TrimSpace(cmd.FileName)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrMediaInvalidInput)
	}
	if uploadID == "" {
		return Product{}, fmt.Errorf("%w: upload id is required", ErrMediaInvalidInput)
	}
	if fileName == "" {
		return Product{}, fmt.Errorf("%w: file name is required", ErrMediaInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}

	stagingPath, err := storage.BuildObjectPath(storage.PurposeUploadStaging, storage.PathParams{
		UploadID: uploadID,
		FileName: fileName,
	})
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrMediaInvalidInput, err)
	}
	imagePath, err := storage.BuildObjectPath(storage.PurposeProductImage, storage.PathParams{
		ProductID: productID,
		UploadID:  uploadID,
		FileName:  fileName,
	})
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrMediaInvalidInput, err)
	}

	if err := s.copier.CopyObject(ctx, s.config.Bucket, stagingPath, s.config.Bucket, imagePath); err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrMediaStorage, err)
	}

	product.ImageURL = s.publicURL(imagePath)
	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}

	s.logger(ctx, "media.image.attached", map[string]any{
		"productId": product.ID,
		"object":    imagePath,
	})
	return product, nil
}

func (s *mediaService) publicURL(objectPath string) string {
	base := strings.TrimRight(strings.TrimSpace(s.config.PublicBaseURL), "/")
	if base == "" {
		base = fmt.Sprintf("https://storage.googleapis.com/%s", s.config.Bucket)
	}
	return base + "/" + objectPath
}

func contentTypeSupported(contentType string) bool {
	for _, allowed := range productImageContentTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}
