// Package storage keeps uploaded image files in an object store.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

// Storage stores objects under slash-separated keys.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// CleanURL escapes spaces and normalizes a generated public URL.
func CleanURL(urlStr string) string {
	urlStr = strings.ReplaceAll(urlStr, " ", "%20")
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	return parsedURL.String()
}
