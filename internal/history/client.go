// Package history lists previously generated exercises and re-downloads their
// packages and documents.
package history

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/logbook"
)

// maxParallelDownloads bounds DownloadAll.
const maxParallelDownloads = 3

// Remote is the subset of the generation service history needs.
type Remote interface {
	ListExercises(ctx context.Context) ([]genclient.GeneratedPackage, error)
	DownloadPackage(ctx context.Context, id int64) ([]byte, error)
	DownloadDocument(ctx context.Context, id int64, docType string) ([]byte, error)
}

// Saver persists a blob under a file name.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Result is the outcome of one download.
type Result struct {
	Doc  DocType
	Path string
	Err  error
}

// Client fetches packages. Every call is independent: a failure never affects
// another call or previously returned data.
type Client struct {
	remote  Remote
	saver   Saver
	journal *logbook.Logbook
}

// NewClient builds a history client. journal may be nil.
func NewClient(remote Remote, saver Saver, journal *logbook.Logbook) *Client {
	return &Client{remote: remote, saver: saver, journal: journal}
}

// List returns the generated packages.
func (c *Client) List(ctx context.Context) ([]genclient.GeneratedPackage, error) {
	pkgs, err := c.remote.ListExercises(ctx)
	if err != nil {
		c.journal.Warn("history: list failed: %v", err)
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return pkgs, nil
}

// DownloadPackage saves the package archive as "<name>_Package.zip".
func (c *Client) DownloadPackage(ctx context.Context, pkg genclient.GeneratedPackage) (string, error) {
	data, err := c.remote.DownloadPackage(ctx, pkg.ID)
	if err != nil {
		c.journal.Warn("history: package %d download failed: %v", pkg.ID, err)
		return "", fmt.Errorf("history: download package %d: %w", pkg.ID, err)
	}
	path, err := c.saver.Save(ctx, pkg.Name+"_Package.zip", data)
	if err != nil {
		return "", fmt.Errorf("history: save package %d: %w", pkg.ID, err)
	}
	c.journal.Info("history: saved %s", path)
	return path, nil
}

// DownloadDocument saves one document as "<name>_<Label>.<ext>".
func (c *Client) DownloadDocument(ctx context.Context, pkg genclient.GeneratedPackage, doc DocType) (string, error) {
	name := doc.FileName(pkg.Name)
	data, err := c.remote.DownloadDocument(ctx, pkg.ID, string(doc))
	if err != nil {
		c.journal.Warn("history: %s of package %d failed: %v", doc, pkg.ID, err)
		return "", fmt.Errorf("history: download %s of package %d: %w", doc, pkg.ID, err)
	}
	path, err := c.saver.Save(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("history: save %s: %w", name, err)
	}
	c.journal.Info("history: saved %s", path)
	return path, nil
}

// DownloadAll fetches every document of pkg concurrently. Results are in
// DocTypes order; a failed document does not stop the others.
func (c *Client) DownloadAll(ctx context.Context, pkg genclient.GeneratedPackage) []Result {
	docs := DocTypes()
	results := make([]Result, len(docs))
	var g errgroup.Group
	g.SetLimit(maxParallelDownloads)
	for i, doc := range docs {
		g.Go(func() error {
			path, err := c.DownloadDocument(ctx, pkg, doc)
			results[i] = Result{Doc: doc, Path: path, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
