package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Disk stores objects as files below a root directory and serves them over HTTP.
type Disk struct {
	fs      afero.Fs
	baseURL string
}

// NewDisk roots the store at dir on the OS filesystem. Public URLs are baseURL + "/storage/" + key.
func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return NewDiskFs(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL), nil
}

// NewDiskFs uses fs as the storage root.
func NewDiskFs(fs afero.Fs, baseURL string) *Disk {
	return &Disk{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + key)
	if k == "/" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}

func (d *Disk) Put(_ context.Context, key string, body io.Reader, _ string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := d.fs.MkdirAll(path.Dir(k), 0o755); err != nil {
		return fmt.Errorf("disk storage: mkdir: %w", err)
	}
	f, err := d.fs.Create(k)
	if err != nil {
		return fmt.Errorf("disk storage: create %s: %w", key, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = d.fs.Remove(k)
		return fmt.Errorf("disk storage: write %s: %w", key, err)
	}
	return f.Close()
}

func (d *Disk) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := d.fs.Open(k)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("disk storage: open %s: %w", key, err)
	}
	return f, nil
}

func (d *Disk) Delete(_ context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = d.fs.Remove(k)
	if errors.Is(err, os.ErrNotExist) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("disk storage: remove %s: %w", key, err)
	}
	return nil
}

func (d *Disk) URL(key string) string {
	return CleanURL(d.baseURL + "/storage/" + strings.TrimLeft(key, "/"))
}

// Handler serves stored files; mount it with the "/storage" prefix stripped.
func (d *Disk) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(d.fs).Dir("/"))
}
