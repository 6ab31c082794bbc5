package reports

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/policytracker/policy-tracker/internal/storage"
)

// Archive describes an evidence archive written to storage.
type Archive struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archiver snapshots the compliance workbook into the evidence store.
type Archiver struct {
	exporter *Exporter
	store    storage.Storage
	urlTTL   time.Duration
	now      func() time.Time
}

func NewArchiver(exporter *Exporter, store storage.Storage, urlTTL time.Duration) *Archiver {
	return &Archiver{exporter: exporter, store: store, urlTTL: urlTTL, now: time.Now}
}

// EvidencePrefix is the storage prefix holding a company's archives.
func EvidencePrefix(companyID int64) string {
	return "evidence/" + strconv.FormatInt(companyID, 10) + "/"
}

// EvidencePath returns evidence/<company>/<YYYY-MM-DD>/<id>.xlsx.
func EvidencePath(companyID int64, at time.Time, id string) string {
	return fmt.Sprintf("%s%s/%s.xlsx", EvidencePrefix(companyID), at.UTC().Format(time.DateOnly), id)
}

// Archive builds the workbook for r and uploads it. A URL that cannot be
// signed is logged and left empty; the archive itself is kept.
func (a *Archiver) Archive(ctx context.Context, companyID int64, r Range) (*Archive, error) {
	var buf bytes.Buffer
	if err := a.exporter.WriteWorkbook(ctx, companyID, r, &buf); err != nil {
		return nil, err
	}

	now := a.now()
	path := EvidencePath(companyID, now, uuid.NewString())
	res, err := a.store.Upload(ctx, path, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return nil, fmt.Errorf("upload evidence archive: %w", err)
	}

	out := &Archive{Path: res.Path, Size: res.Size, Checksum: res.Checksum, CreatedAt: now.UTC()}
	if out.URL, err = a.store.GetURL(ctx, res.Path, a.urlTTL); err != nil {
		slog.WarnContext(ctx, "evidence archive stored without download url", "path", res.Path, "error", err)
		out.URL = ""
	}
	slog.InfoContext(ctx, "evidence archive written", "company_id", companyID, "path", res.Path, "size", res.Size)
	return out, nil
}

// List returns the company's archives with fresh download URLs, newest first.
func (a *Archiver) List(ctx context.Context, companyID int64) ([]Archive, error) {
	objects, err := a.store.List(ctx, EvidencePrefix(companyID))
	if err != nil {
		return nil, fmt.Errorf("list evidence archives: %w", err)
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	out := make([]Archive, 0, len(objects))
	for _, o := range objects {
		u, err := a.store.GetURL(ctx, o.Path, a.urlTTL)
		if err != nil {
			slog.WarnContext(ctx, "cannot sign evidence url", "path", o.Path, "error", err)
		}
		out = append(out, Archive{Path: o.Path, URL: u, Size: o.Size, CreatedAt: o.LastModified})
	}
	return out, nil
}

// Owns reports whether path lies inside the company's evidence prefix.
func Owns(companyID int64, path string) bool {
	prefix := EvidencePrefix(companyID)
	return len(path) > len(prefix) && strings.HasPrefix(path, prefix) && !strings.Contains(path, "..")
}
