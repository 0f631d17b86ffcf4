//go:build !tiledb

package exprdb

// Reader is a stub when built without "-tags tiledb". Labels still load so
// dataset metadata and gene lookups work; matrix reads fail.
type Reader struct {
	*dataset
}

// NewReader opens a dataset directory (stub). It resolves the path and loads
// labels.json so config issues are caught early, but Rows returns
// ErrUnsupported.
func NewReader(path string) (*Reader, error) {
	ds, err := openDataset(path)
	if err != nil {
		return nil, err
	}
	return &Reader{dataset: ds}, nil
}

func (r *Reader) Supported() bool { return false }

// Rows reads the expression rows at the given row indices.
func (r *Reader) Rows(indices []int) ([][]float64, error) {
	return nil, ErrUnsupported
}

func (r *Reader) Close() error { return nil }
