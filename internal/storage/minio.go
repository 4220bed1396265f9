package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var Client *minio.Client
var BucketName string

func Init() error {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	if accessKey == "" {
		accessKey = "vat-extraction"
	}

	secretKey := os.Getenv("MINIO_SECRET_KEY")

	BucketName = os.Getenv("MINIO_BUCKET")
	if BucketName == "" {
		BucketName = "vat-documents"
	}

	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	var err error
	Client, err = minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := Client.BucketExists(ctx, BucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", BucketName)
	}

	return nil
}

// UploadDocument uploads a source document under a date-bucketed path.
// Path format: {category}/YYYY/MM/{filename}
func UploadDocument(ctx context.Context, category string, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	if category == "" {
		category = "uncategorised"
	}

	now := time.Now()
	objectName := fmt.Sprintf("%s/%d/%02d/%s",
		category,
		now.Year(),
		now.Month(),
		filename,
	)

	_, err := Client.PutObject(ctx, BucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload document: %w", err)
	}

	// Return the full path for storage in DB
	return fmt.Sprintf("%s/%s", BucketName, objectName), nil
}

// GetPresignedURL generates a presigned URL for retrieving a document
func GetPresignedURL(ctx context.Context, objectPath string) (string, error) {
	// Remove bucket prefix if present
	objectName := objectPath
	if len(objectPath) > len(BucketName)+1 && objectPath[:len(BucketName)+1] == BucketName+"/" {
		objectName = objectPath[len(BucketName)+1:]
	}

	url, err := Client.PresignedGetObject(ctx, BucketName, objectName, 24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// DeleteDocument removes a document from storage
func DeleteDocument(ctx context.Context, objectPath string) error {
	objectName := objectPath
	if len(objectPath) > len(BucketName)+1 && objectPath[:len(BucketName)+1] == BucketName+"/" {
		objectName = objectPath[len(BucketName)+1:]
	}

	return Client.RemoveObject(ctx, BucketName, objectName, minio.RemoveObjectOptions{})
}

// GetFileExtension extracts file extension from content type
func GetFileExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "text/csv":
		return ".csv"
	case "text/tab-separated-values":
		return ".tsv"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/vnd.ms-excel":
		return ".xls"
	case "application/json":
		return ".json"
	default:
		return ".bin"
	}
}
