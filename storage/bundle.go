package storage

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	rardecode "github.com/nwaples/rardecode/v2"
)

const (
	maxBundleBytes   int64 = 200 * 1024 * 1024 // 200 MiB upper guard
	archiveFormatZip       = "zip"
	archiveFormatRar       = "rar"
)

// BundleImage 表示封面压缩包中的一张图片。
// Name 已去掉目录前缀，仅保留文件名。
type BundleImage struct {
	Name        string
	Data        []byte
	ContentType string
}

// ExtractImages 解出封面压缩包内的全部图片，支持 zip 与 rar。
// 非图片条目与超出单图大小限制的条目被跳过。
func ExtractImages(fileHeader *multipart.FileHeader) ([]BundleImage, error) {
	if fileHeader == nil {
		return nil, errors.New("storage: bundle file not provided")
	}
	if fileHeader.Size > 0 && fileHeader.Size > maxBundleBytes {
		return nil, fmt.Errorf("storage: bundle size exceeds %d bytes", maxBundleBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("storage: open bundle: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp("", "cover-bundle-*")
	if err != nil {
		return nil, fmt.Errorf("storage: create temp file: %w", err)
	}
	defer func() {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
	}()

	written, err := io.Copy(tmpFile, io.LimitReader(src, maxBundleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage: copy bundle: %w", err)
	}
	if written > maxBundleBytes {
		return nil, fmt.Errorf("storage: bundle size exceeds %d bytes", maxBundleBytes)
	}

	format, err := detectArchiveFormat(tmpFile, fileHeader.Filename)
	if err != nil {
		return nil, err
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("storage: rewind temp file: %w", err)
	}

	var images []BundleImage
	switch format {
	case archiveFormatZip:
		images, err = extractZipImages(tmpFile, written)
	case archiveFormatRar:
		images, err = extractRarImages(tmpFile)
	default:
		err = errors.New("storage: unsupported bundle format")
	}
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, errors.New("storage: bundle contains no images")
	}
	return images, nil
}

func extractZipImages(tmpFile *os.File, size int64) ([]BundleImage, error) {
	reader, err := zip.NewReader(tmpFile, size)
	if err != nil {
		return nil, fmt.Errorf("storage: parse bundle: %w", err)
	}

	var images []BundleImage
	for _, file := range reader.File {
		sanitized, err := sanitizeArchiveEntry(file.Name)
		if err != nil {
			return nil, err
		}
		if sanitized == "" || file.FileInfo().IsDir() || !isImagePath(strings.ToLower(sanitized)) {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("storage: open entry %s: %w", sanitized, err)
		}
		data, err := readImageEntry(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("storage: read entry %s: %w", sanitized, err)
		}
		if data == nil {
			continue
		}

		images = append(images, newBundleImage(sanitized, data))
	}
	return images, nil
}

func extractRarImages(tmpFile *os.File) ([]BundleImage, error) {
	rr, err := rardecode.NewReader(tmpFile)
	if err != nil {
		return nil, fmt.Errorf("storage: parse rar bundle: %w", err)
	}

	var images []BundleImage
	for {
		header, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: read rar entry: %w", err)
		}

		sanitized, err := sanitizeArchiveEntry(header.Name)
		if err != nil {
			return nil, err
		}
		if sanitized == "" || header.IsDir || !isImagePath(strings.ToLower(sanitized)) {
			if !header.IsDir {
				if _, err := io.Copy(io.Discard, rr); err != nil {
					return nil, fmt.Errorf("storage: discard rar entry: %w", err)
				}
			}
			continue
		}

		data, err := readImageEntry(rr)
		if err != nil {
			return nil, fmt.Errorf("storage: read entry %s: %w", sanitized, err)
		}
		if data == nil {
			continue
		}

		images = append(images, newBundleImage(sanitized, data))
	}
	return images, nil
}

// readImageEntry 读取单个图片条目，超出单图大小限制时返回 nil 跳过。
func readImageEntry(r io.Reader) ([]byte, error) {
	var buffer bytes.Buffer
	written, err := io.Copy(&buffer, io.LimitReader(r, maxCoverBytes+1))
	if err != nil {
		return nil, err
	}
	if written > maxCoverBytes {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return buffer.Bytes(), nil
}

func newBundleImage(relPath string, data []byte) BundleImage {
	name := path.Base(relPath)
	return BundleImage{
		Name:        name,
		Data:        data,
		ContentType: imageContentType(name),
	}
}

func detectArchiveFormat(file *os.File, originalName string) (string, error) {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(originalName)))
	switch ext {
	case ".zip":
		return archiveFormatZip, nil
	case ".rar":
		return archiveFormatRar, nil
	}

	var header [8]byte
	n, err := file.ReadAt(header[:], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("storage: read bundle header: %w", err)
	}
	headerSlice := header[:n]

	if len(headerSlice) >= 2 && headerSlice[0] == 0x50 && headerSlice[1] == 0x4b {
		return archiveFormatZip, nil
	}
	if len(headerSlice) >= 6 && bytes.Equal(headerSlice[:6], []byte{0x52, 0x61, 0x72, 0x21, 0x1a, 0x07}) {
		return archiveFormatRar, nil
	}

	if ext != "" {
		return "", fmt.Errorf("storage: unsupported bundle format %q", ext)
	}
	return "", errors.New("storage: unsupported bundle format, only .zip and .rar are accepted")
}

func sanitizeArchiveEntry(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", nil
	}

	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	normalized = path.Clean(normalized)
	normalized = strings.TrimPrefix(normalized, "./")
	if normalized == "." || normalized == "" {
		return "", nil
	}
	if strings.HasPrefix(normalized, "../") {
		return "", fmt.Errorf("storage: bundle entry %q uses parent traversal", name)
	}
	if strings.HasPrefix(strings.ToLower(normalized), "__macosx/") {
		return "", nil
	}
	return normalized, nil
}

func isImagePath(path string) bool {
	switch {
	case strings.HasSuffix(path, ".png"):
		return true
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return true
	case strings.HasSuffix(path, ".webp"):
		return true
	case strings.HasSuffix(path, ".gif"):
		return true
	default:
		return false
	}
}

func imageContentType(name string) string {
	switch strings.ToLower(strings.TrimSpace(filepath.Ext(name))) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
