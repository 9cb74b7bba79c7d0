package crawler

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hsh0702/boardsum/store"
	Logger "github.com/hsh0702/boardsum/utils/log"
)

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

var imageUrlSuffixes = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

var videoUrlSuffixes = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
}

// ContainsVideoUrl reports whether any url looks like a video file. Video
// posts are not summarizable and get skipped upstream.
func ContainsVideoUrl(urls []string) bool {
	for _, raw := range urls {
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if videoUrlSuffixes[strings.ToLower(path.Ext(parsed.Path))] {
			return true
		}
	}
	return false
}

// DownloadImages fetches each image into assetRoot/<externalId>/ and
// returns asset records for the ones that succeeded. A single failed
// download is logged and skipped, the rest of the batch continues.
func DownloadImages(imageUrls []string, externalId string, referer string, assetRoot string, userAgent string) []store.AssetInput {
	if len(imageUrls) == 0 {
		return nil
	}

	targetDir := filepath.Join(assetRoot, externalId)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		Logger.Log.Errorf("fail to create asset directory %s: %v", targetDir, err)
		return nil
	}

	client := &http.Client{Timeout: 30 * time.Second}
	assets := []store.AssetInput{}
	for index, imageUrl := range imageUrls {
		req, err := http.NewRequest(http.MethodGet, imageUrl, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Referer", referer)

		resp, err := client.Do(req)
		if err != nil {
			Logger.Log.Warnf("fail to download image %s: %v", imageUrl, err)
			continue
		}
		content, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			Logger.Log.Warnf("fail to download image %s: status %d", imageUrl, resp.StatusCode)
			continue
		}

		contentType := resp.Header.Get("Content-Type")
		extension := guessImageExtension(imageUrl, contentType, content)
		filename := fmt.Sprintf("image_%d%s", index+1, extension)
		localPath := filepath.Join(targetDir, filename)
		if err := os.WriteFile(localPath, content, 0o644); err != nil {
			Logger.Log.Errorf("fail to write image %s: %v", localPath, err)
			continue
		}

		assets = append(assets, store.AssetInput{
			AssetType: "image",
			Url:       imageUrl,
			LocalPath: localPath,
			Metadata: map[string]interface{}{
				"order":        index + 1,
				"content_type": contentType,
				"size_bytes":   len(content),
			},
		})
	}
	return assets
}

// guessImageExtension decides the file extension from, in order, the
// response content type, the downloaded bytes, and the url path. ".bin"
// is the catch-all when nothing claims an image type.
func guessImageExtension(imageUrl string, contentType string, content []byte) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if extension, ok := mimeExtensions[mediaType]; ok {
		return extension
	}
	if len(content) > 0 {
		if extension, ok := mimeExtensions[http.DetectContentType(content)]; ok {
			return extension
		}
	}
	if parsed, err := url.Parse(imageUrl); err == nil {
		suffix := strings.ToLower(path.Ext(parsed.Path))
		if imageUrlSuffixes[suffix] {
			return suffix
		}
	}
	return ".bin"
}
