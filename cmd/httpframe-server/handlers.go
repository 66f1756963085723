package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dqx0.com/go/httpframe/httpx"
)

func root(_ context.Context, req *httpx.Message) (*httpx.Message, error) {
	if req.URI() != "/" {
		return nil, httpx.Errorf(404, "no resource at %s", req.URI())
	}
	return httpx.NewResponse(200, nil, nil), nil
}

func echo(_ context.Context, req *httpx.Message) (*httpx.Message, error) {
	return httpx.Text(strings.TrimPrefix(req.URI(), "/echo/")), nil
}

func userAgent(_ context.Context, req *httpx.Message) (*httpx.Message, error) {
	return httpx.Text(req.Head.Headers().Get("User-Agent")), nil
}

// fileStore serves and stores files below one directory.
type fileStore struct {
	root *os.Root
}

func newFileStore(dir string) (*fileStore, error) {
	r, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &fileStore{root: r}, nil
}

func (f *fileStore) Close() error { return f.root.Close() }

func (f *fileStore) get(_ context.Context, req *httpx.Message) (*httpx.Message, error) {
	name, err := fileName(req.URI())
	if err != nil {
		return nil, err
	}
	b, err := f.root.ReadFile(name)
	if err != nil {
		return nil, fileError(name, err)
	}
	return httpx.NewResponse(200, httpx.HeaderMap{"Content-Type": {"application/octet-stream"}}, b), nil
}

func (f *fileStore) put(_ context.Context, req *httpx.Message) (*httpx.Message, error) {
	name, err := fileName(req.URI())
	if err != nil {
		return nil, err
	}
	if err := f.root.WriteFile(name, req.BodyBytes(), 0o644); err != nil {
		return nil, fileError(name, err)
	}
	return httpx.NewResponse(201, nil, nil), nil
}

func fileName(uri string) (string, error) {
	name := strings.TrimPrefix(uri, "/files/")
	if name == "" || strings.HasSuffix(name, "/") {
		return "", httpx.Errorf(400, "missing file name")
	}
	if !filepath.IsLocal(name) {
		return "", httpx.Errorf(403, "%s is outside the served directory", name)
	}
	return name, nil
}

func fileError(name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return httpx.Errorf(404, "%s not found", name)
	case errors.Is(err, fs.ErrPermission):
		return httpx.Errorf(403, "%s: permission denied", name)
	default:
		return err
	}
}
