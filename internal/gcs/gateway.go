// Package gcs is the object-store gateway. Reads are pinned to a specific
// object generation so an ingest always sees the exact byte sequence it
// claimed; a generation that no longer exists is a NotFound, never a silent
// read of newer bytes.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"docatlas/internal/faults"
)

// MetaOriginalFilename is the user-metadata attribute carrying the
// client-controlled display name of an uploaded object.
const MetaOriginalFilename = "originalfilename"

const opTimeout = 30 * time.Second

type Gateway struct {
	client  *storage.Client
	workDir string
}

// NewGateway creates the shared object-store client. workDir is the root of
// the per-document working areas.
func NewGateway(ctx context.Context, workDir string) (*Gateway, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "gcs.NewGateway", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, faults.Wrap(faults.Fatal, "gcs.NewGateway", err)
	}
	return &Gateway{client: client, workDir: workDir}, nil
}

func (g *Gateway) Close() error { return g.client.Close() }

// ParseURI splits a gs://BUCKET/OBJECT URI.
func ParseURI(uri string) (bucket, name string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "gs" || u.Host == "" || len(u.Path) < 2 {
		return "", "", faults.Newf(faults.Validation, "gcs.ParseURI", "invalid gs:// uri: %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// URI renders the gs:// form of an object location.
func URI(bucket, name string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, name)
}

// FetchResult describes a blob materialised into a working directory.
type FetchResult struct {
	LocalPath        string
	Generation       int64
	ContentType      string
	OriginalFilename string
	Size             int64
}

// Stat returns the current generation and metadata of an object without
// downloading it. Used to pin a generation when the caller did not supply
// one.
func (g *Gateway) Stat(ctx context.Context, bucket, name string) (int64, string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	attrs, err := g.client.Bucket(bucket).Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, "", faults.Newf(faults.NotFound, "gcs.Stat", "object %s not found", URI(bucket, name))
	}
	if err != nil {
		return 0, "", faults.Wrap(faults.Upstream, "gcs.Stat", err)
	}
	return attrs.Generation, attrs.Metadata[MetaOriginalFilename], nil
}

// Fetch downloads the exact requested generation into destDir. If the
// generation has been overwritten or deleted the read fails NotFound.
func (g *Gateway) Fetch(ctx context.Context, bucket, name string, generation int64, destDir string) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	obj := g.client.Bucket(bucket).Object(name)
	if generation > 0 {
		obj = obj.Generation(generation)
	}

	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, faults.Newf(faults.NotFound, "gcs.Fetch", "object %s generation %d not found", URI(bucket, name), generation)
	}
	if err != nil {
		return nil, faults.Wrap(faults.Upstream, "gcs.Fetch", err)
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, faults.Newf(faults.NotFound, "gcs.Fetch", "object %s generation %d not found", URI(bucket, name), generation)
		}
		return nil, faults.Wrap(faults.Upstream, "gcs.Fetch", err)
	}
	defer r.Close()

	localPath := filepath.Join(destDir, filepath.Base(name))
	f, err := os.Create(localPath)
	if err != nil {
		return nil, faults.Wrap(faults.Fatal, "gcs.Fetch", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(localPath)
		return nil, faults.Wrap(faults.Upstream, "gcs.Fetch", err)
	}

	return &FetchResult{
		LocalPath:        localPath,
		Generation:       attrs.Generation,
		ContentType:      attrs.ContentType,
		OriginalFilename: attrs.Metadata[MetaOriginalFilename],
		Size:             n,
	}, nil
}

// Upload writes a new object and returns its gs:// URI.
func (g *Gateway) Upload(ctx context.Context, bucket, name string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	w := g.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", faults.Wrap(faults.Upstream, "gcs.Upload", err)
	}
	if err := w.Close(); err != nil {
		return "", faults.Wrap(faults.Upstream, "gcs.Upload", err)
	}
	return URI(bucket, name), nil
}

// NewWorkDir creates a per-document working area. The returned cleanup must
// run on every exit path of the caller.
func (g *Gateway) NewWorkDir(docID string) (string, func(), error) {
	dir, err := os.MkdirTemp(g.workDir, "ingest-"+docID+"-")
	if err != nil {
		return "", nil, faults.Wrap(faults.Fatal, "gcs.NewWorkDir", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
