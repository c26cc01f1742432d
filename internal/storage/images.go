package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const imageFolder = "products"

// Images uploads product pictures supplied as base64 data URLs and serves
// them from the object store under a public base URL.
type Images struct {
	Backend   ObjectStorage
	PublicURL string // e.g. http://localhost:9000
}

// Upload decodes a "data:image/...;base64," payload, stores it under a
// random key and returns the public URL.
func (i *Images) Upload(ctx context.Context, dataURL string) (string, error) {
	contentType, data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	ext := "bin"
	if _, sub, ok := strings.Cut(contentType, "/"); ok {
		ext = sub
	}
	key := fmt.Sprintf("%s/%s.%s", imageFolder, uuid.NewString(), ext)

	if err := i.Backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(i.PublicURL, "/"), i.Backend.Bucket(), key), nil
}

// Delete removes the object behind an URL previously returned by Upload.
func (i *Images) Delete(ctx context.Context, imageURL string) error {
	key, err := keyFromURL(imageURL)
	if err != nil {
		return err
	}
	if err := i.Backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

func decodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, errors.New("unsupported data URL encoding")
	}
	contentType := strings.TrimSuffix(meta, ";base64")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image payload: %w", err)
	}
	return contentType, data, nil
}

// keyFromURL recovers "products/<file>" from the trailing path segments.
func keyFromURL(imageURL string) (string, error) {
	parts := strings.Split(strings.TrimRight(imageURL, "/"), "/")
	if len(parts) < 2 {
		return "", errors.New("malformed image URL")
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}
