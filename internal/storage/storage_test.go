package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Smallest valid PNG header mimetype recognizes.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestUploadAndDeleteRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewLocal(root, "/public/")

	url, err := store.Upload(context.Background(), "receipts", "payment-receipts/abc_1.png", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if url != "/public/receipts/payment-receipts/abc_1.png" {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := os.Stat(filepath.Join(root, "receipts", "payment-receipts", "abc_1.png")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	if err := store.DeleteURL(context.Background(), url); err != nil {
		t.Fatalf("DeleteURL returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "receipts", "payment-receipts", "abc_1.png")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed, stat err=%v", err)
	}
	if err := store.Delete(context.Background(), "receipts", "payment-receipts/abc_1.png"); err != nil {
		t.Fatalf("deleting a missing object should succeed, got %v", err)
	}
}

func TestUploadRejectsTraversal(t *testing.T) {
	store := NewLocal(t.TempDir(), "/public")
	if _, err := store.Upload(context.Background(), "..", "x.png", bytes.NewReader(pngHeader)); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath for bucket traversal, got %v", err)
	}
	url, err := store.Upload(context.Background(), "receipts", "../../etc/passwd", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("cleaned path should stay inside the bucket, got %v", err)
	}
	if url != "/public/receipts/etc/passwd" {
		t.Fatalf("unexpected url %q", url)
	}
	if err := store.DeleteURL(context.Background(), "/elsewhere/receipts/x.png"); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath for foreign url, got %v", err)
	}
}

func TestCheckImage(t *testing.T) {
	if err := CheckImage(MaxImageSize+1, "image/png"); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if err := CheckImage(10, "application/pdf"); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
	if err := CheckImage(MaxImageSize, "image/jpeg"); err != nil {
		t.Fatalf("expected 5MB jpeg to pass, got %v", err)
	}
	if err := CheckImage(10, "image/svg+xml"); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected svg to be refused, got %v", err)
	}
}

func TestSniffRewinds(t *testing.T) {
	r := bytes.NewReader(pngHeader)
	ctype, err := Sniff(r)
	if err != nil {
		t.Fatalf("Sniff returned error: %v", err)
	}
	if ctype != "image/png" {
		t.Fatalf("expected image/png, got %s", ctype)
	}
	if r.Len() != len(pngHeader) {
		t.Fatalf("expected reader rewound, %d bytes left", r.Len())
	}
}

func TestObjectPathAndExtension(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	got := ObjectPath("payment-receipts", "order1", Extension("Receipt.JPG", "image/jpeg"), at)
	if got != "payment-receipts/order1_1700000000123.jpg" {
		t.Fatalf("unexpected object path %q", got)
	}
	if ext := Extension("blob", "image/png"); ext != "png" {
		t.Fatalf("expected png from content type, got %q", ext)
	}
	if !strings.HasPrefix(ObjectPath("", "k", "png", at), "k_") {
		t.Fatal("expected no folder prefix")
	}
}

func TestExtensionFollowsSniffedType(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"receipt.html", "image/png", "png"},
		{"photo.jpeg", "image/jpeg", "jpeg"},
		{"photo.png", "image/jpeg", "jpg"},
		{"logo.svg", "image/svg+xml", "bin"},
		{"page.html", "text/html; charset=utf-8", "bin"},
		{"Receipt.WEBP", "image/webp", "webp"},
	}
	for _, tt := range tests {
		if got := Extension(tt.filename, tt.contentType); got != tt.want {
			t.Fatalf("Extension(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
		}
	}
}
