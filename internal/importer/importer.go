// Package importer loads the pipe-separated poem data files into the
// catalogue. Files are named <朝代>-<题材>诗.txt and hold one poem per line:
//
//	title|author|dynasty|content|annotation
package importer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shijian-backend/internal/models"
)

const annotationSource = "数据文件注释"

// Subjects lists the themes published for each dynasty.
var Subjects = map[string][]string{
	"唐": {"边塞", "田园", "送别", "咏物"},
	"宋": {"田园", "送别", "咏物", "抒情"},
	"元": {"抒情", "咏物", "山水"},
	"明": {"抒情", "咏物", "山水"},
	"清": {"抒情", "咏物", "山水"},
}

// Record is one parsed line of a data file.
type Record struct {
	Title      string
	Author     string
	Dynasty    string
	Content    string
	Annotation string
}

// ParseFileName splits "唐-边塞诗.txt" into its dynasty and subject.
func ParseFileName(name string) (dynasty, subject string, err error) {
	base := strings.TrimSuffix(filepath.Base(name), ".txt")
	dynasty, rest, ok := strings.Cut(base, "-")
	if !ok || !strings.HasSuffix(rest, "诗") {
		return "", "", fmt.Errorf("unexpected data file name %q", name)
	}
	subject = strings.TrimSuffix(rest, "诗")
	if dynasty == "" || subject == "" {
		return "", "", fmt.Errorf("unexpected data file name %q", name)
	}
	return dynasty, subject, nil
}

// Parse reads records from r. Blank lines and lines with fewer than five
// fields are skipped.
func Parse(r io.Reader) ([]Record, int, error) {
	var records []Record
	skipped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 5 {
			skipped++
			continue
		}
		records = append(records, Record{
			Title:      strings.TrimSpace(parts[0]),
			Author:     strings.TrimSpace(parts[1]),
			Dynasty:    strings.TrimSpace(parts[2]),
			Content:    strings.TrimSpace(parts[3]),
			Annotation: strings.TrimSpace(strings.Join(parts[4:], "|")),
		})
	}
	return records, skipped, scanner.Err()
}

type AuthorStore interface {
	FindOrCreate(ctx context.Context, name, dynasty string) (*models.Author, bool, error)
}

type PoemStore interface {
	CreateIfAbsent(ctx context.Context, poem *models.Poem) (bool, error)
	AddAppreciation(ctx context.Context, a *models.Appreciation) error
}

// Stats summarises an import run.
type Stats struct {
	Files          int
	Poems          int
	Duplicates     int
	Skipped        int
	AuthorsCreated int
}

type Importer struct {
	authors AuthorStore
	poems   PoemStore
	dryRun  bool
	logger  *slog.Logger
}

func New(authors AuthorStore, poems PoemStore, dryRun bool) *Importer {
	return &Importer{
		authors: authors,
		poems:   poems,
		dryRun:  dryRun,
		logger:  slog.Default().With("component", "importer"),
	}
}

// ImportDir imports every data file in dir, in name order.
func (im *Importer) ImportDir(ctx context.Context, dir string) (*Stats, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*-*诗.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	stats := &Stats{}
	for _, path := range files {
		if err := im.importFile(ctx, path, stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (im *Importer) importFile(ctx context.Context, path string, stats *Stats) error {
	fileDynasty, subject, err := ParseFileName(path)
	if err != nil {
		im.logger.Warn("skipping data file", "path", path, "error", err)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, skipped, err := Parse(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	stats.Files++
	stats.Skipped += skipped

	for _, rec := range records {
		if rec.Dynasty == "" {
			rec.Dynasty = fileDynasty
		}
		if rec.Title == "" || rec.Content == "" {
			stats.Skipped++
			continue
		}
		if im.dryRun {
			stats.Poems++
			continue
		}
		if err := im.store(ctx, rec, subject, stats); err != nil {
			return fmt.Errorf("failed to import %q from %s: %w", rec.Title, path, err)
		}
	}

	im.logger.Info("imported data file", "path", path, "records", len(records), "skipped", skipped)
	return nil
}

func (im *Importer) store(ctx context.Context, rec Record, subject string, stats *Stats) error {
	name := rec.Author
	if name == "" {
		name = "未知作者"
	}
	author, created, err := im.authors.FindOrCreate(ctx, name, rec.Dynasty)
	if err != nil {
		return err
	}
	if created {
		stats.AuthorsCreated++
	}

	poem := &models.Poem{
		Title:    rec.Title,
		Content:  rec.Content,
		Dynasty:  rec.Dynasty,
		Type:     subject,
		Themes:   []string{subject},
		AuthorID: author.ID,
	}
	inserted, err := im.poems.CreateIfAbsent(ctx, poem)
	if err != nil {
		return err
	}
	if !inserted {
		stats.Duplicates++
		return nil
	}
	stats.Poems++

	if rec.Annotation == "" {
		return nil
	}
	source := annotationSource
	return im.poems.AddAppreciation(ctx, &models.Appreciation{
		PoemID:  poem.ID,
		Content: rec.Annotation,
		Source:  &source,
	})
}
