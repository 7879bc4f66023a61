// Package storage keeps uploaded objects under a public directory and hands
// back the URL they are served from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize is the largest image accepted for upload.
const MaxImageSize = 5 << 20

var (
	ErrImageTooLarge = errors.New("image file too large (max 5MB)")
	ErrNotAnImage    = errors.New("only image files are allowed")
	ErrUnsafePath    = errors.New("refusing path outside storage root")
)

type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, baseURL string) *Local {
	return &Local{
		root:    filepath.Clean(root),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload writes body to bucket/objectPath, replacing any existing object, and
// returns its public URL.
func (l *Local) Upload(ctx context.Context, bucket, objectPath string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, rel, err := l.resolve(bucket, objectPath)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[UPLOAD] [ERROR] failed to create directory %s: %v", dir, err)
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		log.Printf("[UPLOAD] [ERROR] failed to create temp file in %s: %v", dir, err)
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		log.Printf("[UPLOAD] [ERROR] failed to write %s: %v", rel, err)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		log.Printf("[UPLOAD] [ERROR] failed to move upload into %s: %v", rel, err)
		return "", err
	}

	log.Printf("[UPLOAD] [INFO] stored %s", rel)
	return l.baseURL + "/" + rel, nil
}

// Delete removes bucket/objectPath. A missing object is not an error.
func (l *Local) Delete(ctx context.Context, bucket, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, _, err := l.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteURL removes the object a previously returned public URL points at.
func (l *Local) DeleteURL(ctx context.Context, publicURL string) error {
	trimmed := strings.TrimSpace(publicURL)
	if trimmed == "" {
		return nil
	}
	if !strings.HasPrefix(trimmed, l.baseURL+"/") {
		return fmt.Errorf("%w: %s", ErrUnsafePath, publicURL)
	}
	rel := strings.TrimPrefix(trimmed, l.baseURL+"/")
	bucket, objectPath, ok := strings.Cut(rel, "/")
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsafePath, publicURL)
	}
	return l.Delete(ctx, bucket, objectPath)
}

func (l *Local) resolve(bucket, objectPath string) (string, string, error) {
	bucket = strings.Trim(strings.TrimSpace(bucket), "/")
	if bucket == "" || strings.Contains(bucket, "/") || bucket == "." || bucket == ".." {
		return "", "", fmt.Errorf("%w: bucket %q", ErrUnsafePath, bucket)
	}

	cleanRel := path.Clean("/" + strings.TrimPrefix(strings.TrimSpace(objectPath), "/"))
	cleanRel = strings.TrimPrefix(cleanRel, "/")
	if cleanRel == "" || cleanRel == "." {
		return "", "", fmt.Errorf("%w: empty object path", ErrUnsafePath)
	}

	rel := bucket + "/" + cleanRel
	target := filepath.Clean(filepath.Join(l.root, filepath.FromSlash(rel)))
	if !strings.HasPrefix(target, l.root+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("%w: %s", ErrUnsafePath, objectPath)
	}
	return target, rel, nil
}

// imageExtensions lists the image types accepted for upload and the
// extension each is stored under. SVG is left out since it can carry script.
var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

func baseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// CheckImage enforces the size cap and the image type allow-list.
func CheckImage(size int64, contentType string) error {
	if size > MaxImageSize {
		return ErrImageTooLarge
	}
	if _, ok := imageExtensions[baseType(contentType)]; !ok {
		return ErrNotAnImage
	}
	return nil
}

// Sniff detects the content type of rs from its leading bytes and rewinds it.
func Sniff(rs io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(rs)
	if err != nil {
		return "", err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mtype.String(), nil
}

// Extension returns the stored extension, without the dot, for a sniffed
// content type. The client filename is only used to keep "jpeg" over "jpg";
// it can never introduce a different type. Unknown types map to "bin".
func Extension(filename, contentType string) string {
	ext, ok := imageExtensions[baseType(contentType)]
	if !ok {
		return "bin"
	}
	if ext == "jpg" && strings.EqualFold(filepath.Ext(filename), ".jpeg") {
		return "jpeg"
	}
	return ext
}

// ObjectPath builds {folder}/{key}_{unixMillis}.{ext}.
func ObjectPath(folder, key, ext string, at time.Time) string {
	name := fmt.Sprintf("%s_%d.%s", key, at.UnixMilli(), ext)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
