package image

import (
	"bytes"
	stdimage "image"
	"net/http"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const octetStream = "application/octet-stream"

var formatMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
	"tiff": "image/tiff",
}

var extensionFormat = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
	".bmp":  "bmp",
	".webp": "webp",
	".tif":  "tiff",
	".tiff": "tiff",
}

// DetectFormat identifies the raster format from the image header, falling
// back to the filename extension. It returns "" when neither is conclusive.
func DetectFormat(filename string, data []byte) string {
	if len(data) > 0 {
		if _, format, err := stdimage.DecodeConfig(bytes.NewReader(data)); err == nil && format != "" {
			return format
		}
	}
	return extensionFormat[strings.ToLower(filepath.Ext(filename))]
}

// ResolveContentType keeps a meaningful declared type and otherwise derives one
// from the detected format or the bytes themselves.
func ResolveContentType(declared, format string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.EqualFold(declared, octetStream) {
		return declared
	}
	if mime, ok := formatMIME[format]; ok {
		return mime
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return octetStream
}
