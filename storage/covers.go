package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxCoverBytes int64 = 5 * 1024 * 1024

// CoverStorage 将视频封面图保存到 MinIO/S3 兼容的对象存储。
type CoverStorage struct {
	client *minio.Client
	bucket string
}

// NewCoverStorageFromEnv 依据 MINIO_* 环境变量初始化封面存储。
// 任一必需变量缺失时返回 (nil, nil)，封面能力被禁用而非报错。
func NewCoverStorageFromEnv() (*CoverStorage, error) {
	endpoint := strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	accessKey := strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("MINIO_SECRET_KEY"))
	bucket := strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, nil
	}

	useSSL := strings.EqualFold(strings.TrimSpace(os.Getenv("MINIO_USE_SSL")), "true")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	return &CoverStorage{client: client, bucket: bucket}, nil
}

// Enabled 报告封面存储是否可用。
func (s *CoverStorage) Enabled() bool {
	return s != nil && s.client != nil
}

// Upload 保存上传的封面文件并返回对象键，键格式为
// covers/<segments...>/<uuid>.<ext>。
func (s *CoverStorage) Upload(ctx context.Context, fileHeader *multipart.FileHeader, pathSegments ...string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("storage: cover storage not configured")
	}
	if fileHeader == nil {
		return "", errors.New("storage: cover file not provided")
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxCoverBytes {
		return "", fmt.Errorf("storage: cover size exceeds %d bytes", maxCoverBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("storage: open cover: %w", err)
	}
	defer src.Close()

	var buffer bytes.Buffer
	limited := io.LimitReader(src, maxCoverBytes+1)
	written, err := io.Copy(&buffer, limited)
	if err != nil {
		return "", fmt.Errorf("storage: read cover: %w", err)
	}
	if written > maxCoverBytes {
		return "", fmt.Errorf("storage: cover size exceeds %d bytes", maxCoverBytes)
	}

	data := buffer.Bytes()
	contentType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return s.putObject(ctx, data, contentType, fileHeader.Filename, pathSegments)
}

// UploadBytes 保存内存中的封面图并返回对象键。
func (s *CoverStorage) UploadBytes(ctx context.Context, data []byte, contentType string, pathSegments ...string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("storage: cover storage not configured")
	}
	if len(data) == 0 {
		return "", errors.New("storage: cover data is empty")
	}
	if int64(len(data)) > maxCoverBytes {
		return "", fmt.Errorf("storage: cover size exceeds %d bytes", maxCoverBytes)
	}

	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return s.putObject(ctx, data, contentType, "", pathSegments)
}

func (s *CoverStorage) putObject(ctx context.Context, data []byte, contentType, filename string, pathSegments []string) (string, error) {
	if !isAllowedCoverContent(contentType) {
		return "", fmt.Errorf("storage: unsupported cover content type %q", contentType)
	}

	segments := []string{"covers"}
	for _, segment := range pathSegments {
		trimmed := strings.Trim(segment, "/")
		if trimmed != "" {
			segments = append(segments, trimmed)
		}
	}
	objectName := path.Join(append(segments, uuid.NewString()+coverExtension(filename, contentType))...)

	uploadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(uploadCtx, s.bucket, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=604800",
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload cover: %w", err)
	}

	return objectName, nil
}

// Remove 删除对象键或其 URL 形式指向的封面。
func (s *CoverStorage) Remove(ctx context.Context, stored string) error {
	if !s.Enabled() {
		return nil
	}
	objectName := s.objectName(stored)
	if objectName == "" {
		return nil
	}

	removeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.client.RemoveObject(removeCtx, s.bucket, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL 为存储的封面生成临时访问链接。
// 存储未配置时原样返回，http(s) 链接不做二次签名。
func (s *CoverStorage) PresignedURL(ctx context.Context, stored string, expiry time.Duration) (string, error) {
	trimmed := strings.TrimSpace(stored)
	if !s.Enabled() || trimmed == "" {
		return trimmed, nil
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed, nil
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	objectName := s.objectName(trimmed)
	if objectName == "" {
		return trimmed, nil
	}

	presignCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	signed, err := s.client.PresignedGetObject(presignCtx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return signed.String(), nil
}

// objectName 从对象键或访问链接中还原桶内对象名。
func (s *CoverStorage) objectName(stored string) string {
	trimmed := strings.TrimSpace(stored)
	if trimmed == "" {
		return ""
	}

	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return ""
		}
		trimmed = parsed.Path
	}

	trimmed = strings.TrimPrefix(trimmed, "/")
	trimmed = strings.TrimPrefix(trimmed, s.bucket+"/")
	return strings.TrimPrefix(trimmed, "/")
}

func isAllowedCoverContent(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png", "image/x-png":
		return true
	case "image/jpeg", "image/pjpeg":
		return true
	case "image/webp":
		return true
	case "image/gif":
		return true
	default:
		return false
	}
}

func coverExtension(filename, contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png", "image/x-png":
		return ".png"
	case "image/jpeg", "image/pjpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filename)))
	if ext == "" {
		return ".bin"
	}
	return ext
}
