package knowledge

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonathan/ckd-assistant/internal/fetch"
)

// LoadDirectory reads every .txt, .md and .html document under dir.
// HTML documents are reduced to their main text.
func LoadDirectory(dir string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" && ext != ".html" && ext != ".htm" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}

		doc := Document{Source: filepath.ToSlash(rel), Text: string(data)}
		if ext == ".html" || ext == ".htm" {
			text, err := fetch.ExtractMainText(doc.Text, fetch.DefaultTextSelectors())
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", path, err)
			}
			doc.Title = fetch.ExtractTitle(doc.Text)
			doc.Text = text
		}
		if strings.TrimSpace(doc.Text) == "" {
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Source < docs[j].Source })
	return docs, nil
}
