package storage

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// Category is the kind of pipeline output a stored file holds.
type Category string

const (
	CategoryContent Category = "content"
	CategoryScript  Category = "script"
	CategoryAudio   Category = "audio"
	CategoryImage   Category = "image"
	CategoryUnknown Category = "unknown"
)

// Artifact is one object stored under an episode prefix.
type Artifact struct {
	Key          string
	Name         string
	Size         int64
	LastModified *time.Time
	Category     Category
}

var (
	audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}
)

// Categorize classifies a file by name. Files written before artifacts were
// tagged only carry their kind in the name, so matching is by substring and
// extension, checked in a fixed order.
func Categorize(name string) Category {
	base := strings.ToLower(path.Base(name))
	ext := path.Ext(base)

	switch {
	case strings.Contains(base, "audio") || hasAny(ext, audioExtensions):
		return CategoryAudio
	case strings.Contains(base, "image") || strings.Contains(base, "cover") || hasAny(ext, imageExtensions):
		return CategoryImage
	case strings.Contains(base, "script"):
		return CategoryScript
	case strings.Contains(base, "telegram") || strings.Contains(base, "content") ||
		strings.Contains(base, "_data") || ext == ".json":
		return CategoryContent
	}
	return CategoryUnknown
}

func hasAny(ext string, exts []string) bool {
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// KeyFromRef turns an artifact reference stored on an episode into an object
// key. It understands s3:// URIs, virtual-hosted and path-style HTTPS URLs
// and bare keys. ok is false when the reference points at another bucket or
// cannot be parsed.
func KeyFromRef(ref, bucket string) (key string, ok bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if !strings.Contains(ref, "://") {
		return strings.TrimPrefix(ref, "/"), true
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}

	switch u.Scheme {
	case "s3":
		if u.Host != bucket {
			return "", false
		}
		return strings.TrimPrefix(u.Path, "/"), true
	case "http", "https":
		p := strings.TrimPrefix(u.Path, "/")
		if strings.HasPrefix(u.Host, bucket+".") {
			return p, true
		}
		if strings.HasPrefix(p, bucket+"/") {
			return strings.TrimPrefix(p, bucket+"/"), true
		}
	}
	return "", false
}
