package storage

import (
	"archive/zip"
	"bytes"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildZipFileHeader 把一组条目打成 zip 并包装成 multipart 文件头。
func buildZipFileHeader(t *testing.T, entries map[string][]byte) *multipart.FileHeader {
	t.Helper()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("bundle", "covers.zip")
	require.NoError(t, err)
	_, err = fw.Write(archive.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	reader := multipart.NewReader(&form, mw.Boundary())
	parsed, err := reader.ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = parsed.RemoveAll() })

	files := parsed.File["bundle"]
	require.Len(t, files, 1)
	return files[0]
}

func TestExtractImagesFromZip(t *testing.T) {
	header := buildZipFileHeader(t, map[string][]byte{
		"covers/1.png":        []byte("png-bytes"),
		"covers/2.jpg":        []byte("jpg-bytes"),
		"covers/readme.txt":   []byte("not an image"),
		"__MACOSX/covers/.ds": []byte("junk"),
	})

	images, err := ExtractImages(header)
	require.NoError(t, err)
	require.Len(t, images, 2)

	byName := map[string]BundleImage{}
	for _, image := range images {
		byName[image.Name] = image
	}

	png, ok := byName["1.png"]
	require.True(t, ok)
	assert.Equal(t, "image/png", png.ContentType)
	assert.Equal(t, []byte("png-bytes"), png.Data)

	jpg, ok := byName["2.jpg"]
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", jpg.ContentType)
}

func TestExtractImagesRejectsEmptyBundle(t *testing.T) {
	header := buildZipFileHeader(t, map[string][]byte{
		"readme.txt": []byte("no images here"),
	})

	_, err := ExtractImages(header)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no images")
}

func TestExtractImagesRejectsTraversal(t *testing.T) {
	header := buildZipFileHeader(t, map[string][]byte{
		"../evil.png": []byte("escape"),
	})

	_, err := ExtractImages(header)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent traversal")
}

func TestSanitizeArchiveEntry(t *testing.T) {
	got, err := sanitizeArchiveEntry(`covers\nested\1.png`)
	require.NoError(t, err)
	assert.Equal(t, "covers/nested/1.png", got)

	got, err = sanitizeArchiveEntry("./")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = sanitizeArchiveEntry("__MACOSX/thumb.png")
	require.NoError(t, err)
	assert.Empty(t, got)
}
