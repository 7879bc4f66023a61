package handlers

import (
	"context"
	"io"
	"log"
	"mime/multipart"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/storage"
)

const (
	productBucket = "products"
	productFolder = "product-images"
)

// ImageStore is the object storage the admin forms write product images to.
type ImageStore interface {
	Upload(ctx context.Context, bucket, objectPath string, body io.Reader) (string, error)
	DeleteURL(ctx context.Context, publicURL string) error
}

// saveUploadedImage sniffs the upload, enforces the image rules and stores it
// under folder with a random key.
func saveUploadedImage(ctx context.Context, images ImageStore, file *multipart.FileHeader) (string, error) {
	in, err := file.Open()
	if err != nil {
		log.Printf("[UPLOAD] [ERROR] open %s: %v", file.Filename, err)
		return "", err
	}
	defer in.Close()

	contentType, err := storage.Sniff(in)
	if err != nil {
		return "", err
	}
	if err := storage.CheckImage(file.Size, contentType); err != nil {
		return "", err
	}

	objectPath := storage.ObjectPath(productFolder, primitive.NewObjectID().Hex(), storage.Extension(file.Filename, contentType), time.Now())
	url, err := images.Upload(ctx, productBucket, objectPath, in)
	if err != nil {
		log.Printf("[UPLOAD] [ERROR] store %s: %v", objectPath, err)
		return "", err
	}
	log.Printf("[UPLOAD] [INFO] stored %s (%s, %d bytes)", objectPath, contentType, file.Size)
	return url, nil
}

// removeStoredImage deletes a previously uploaded image, logging failures.
func removeStoredImage(images ImageStore, url *string) {
	if url == nil || *url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := images.DeleteURL(ctx, *url); err != nil {
		log.Printf("[UPLOAD] [WARN] delete %s failed: %v", *url, err)
	}
}
