package catalog

// Source provides the current catalog. Implementations may return a different
// catalog over time when the underlying question source changes.
type Source interface {
	Current() (*Catalog, error)
}

// Static always returns the same catalog.
type Static struct {
	Catalog *Catalog
}

// Current returns the wrapped catalog.
func (s Static) Current() (*Catalog, error) {
	return s.Catalog, nil
}

// FileSource re-reads a catalog file on every call.
type FileSource struct {
	Path string
}

// Current parses the file as it is now.
func (s FileSource) Current() (*Catalog, error) {
	return LoadFile(s.Path)
}
