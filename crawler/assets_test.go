package crawler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimal valid PNG header, enough for content sniffing
var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

func TestGuessImageExtension(t *testing.T) {
	assert.Equal(t, ".jpg", guessImageExtension("https://x/t", "image/jpeg", nil))
	assert.Equal(t, ".png", guessImageExtension("https://x/t", "image/png; charset=binary", nil))
	assert.Equal(t, ".png", guessImageExtension("https://x/t", "application/octet-stream", pngBytes))
	assert.Equal(t, ".gif", guessImageExtension("https://x/pic.GIF?size=large", "", nil))
	assert.Equal(t, ".bin", guessImageExtension("https://x/file", "text/plain", []byte("hello")))
}

func TestContainsVideoUrl(t *testing.T) {
	assert.True(t, ContainsVideoUrl([]string{"https://x/a.jpg", "https://x/clip.mp4?source=1"}))
	assert.False(t, ContainsVideoUrl([]string{"https://x/a.jpg", "https://x/b.webp"}))
	assert.False(t, ContainsVideoUrl(nil))
}

func TestDownloadImagesWritesFilesAndSkipsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	root := t.TempDir()
	assets := DownloadImages(
		[]string{server.URL + "/ok.png", server.URL + "/missing.png"},
		"post42", "https://referer.example", root, DesktopUserAgent)

	require.Len(t, assets, 1)
	asset := assets[0]
	assert.Equal(t, "image", asset.AssetType)
	assert.Equal(t, server.URL+"/ok.png", asset.Url)
	assert.Equal(t, filepath.Join(root, "post42", "image_1.png"), asset.LocalPath)
	assert.Equal(t, 1, asset.Metadata["order"])
	assert.Equal(t, len(pngBytes), asset.Metadata["size_bytes"])

	written, err := os.ReadFile(asset.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, written)
}

func TestDownloadImagesEmptyInput(t *testing.T) {
	assert.Nil(t, DownloadImages(nil, "id", "", t.TempDir(), DesktopUserAgent))
}
