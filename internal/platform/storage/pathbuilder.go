package storage

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ImageKind groups uploaded catalog imagery.
type ImageKind string

const (
	ImageKindCategory ImageKind = "category"
	ImageKindProduct  ImageKind = "product"
	ImageKindHero     ImageKind = "hero"
)

var errInvalidPath = errors.New("storage: invalid object path")

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// ParseImageKind accepts the kind names used in upload requests.
func ParseImageKind(value string) (ImageKind, bool) {
	switch kind := ImageKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case ImageKindCategory, ImageKindProduct, ImageKindHero:
		return kind, true
	default:
		return "", false
	}
}

// ImageObjectPath returns catalog/{kind}/{uploadID}/{file} with the file name reduced to a safe slug.
func ImageObjectPath(kind ImageKind, uploadID, fileName string) (string, error) {
	if _, ok := ParseImageKind(string(kind)); !ok {
		return "", fmt.Errorf("%w: unknown kind %q", errInvalidPath, kind)
	}
	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" || strings.ContainsAny(uploadID, `/\`) || strings.Contains(uploadID, "..") {
		return "", fmt.Errorf("%w: upload id %q", errInvalidPath, uploadID)
	}
	name := SanitizeFileName(fileName)
	if name == "" {
		return "", fmt.Errorf("%w: file name is required", errInvalidPath)
	}
	return path.Join("catalog", string(kind), uploadID, name), nil
}

// SanitizeFileName lowercases the base name and collapses anything outside [a-z0-9._-] into dashes.
func SanitizeFileName(fileName string) string {
	base := strings.TrimSpace(fileName)
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = unsafeFileChars.ReplaceAllString(strings.ToLower(base), "-")
	base = strings.Trim(base, "-.")
	for strings.Contains(base, "..") {
		base = strings.ReplaceAll(base, "..", ".")
	}
	return base
}

// PublicURL joins the public base URL and object key.
func PublicURL(baseURL, object string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/" + strings.TrimLeft(object, "/")
}
