//go:build tiledb

package exprdb

import (
	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/cockroachdb/errors"
)

// Reader reads expression rows from a dense TileDB array.
type Reader struct {
	*dataset
	ctx *tiledb.Context
}

// NewReader opens a dataset directory and prepares a TileDB context for
// reads.
func NewReader(path string) (*Reader, error) {
	ds, err := openDataset(path)
	if err != nil {
		return nil, err
	}
	ctx, err := tiledb.NewContext(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating TileDB context")
	}
	return &Reader{dataset: ds, ctx: ctx}, nil
}

func (r *Reader) Supported() bool { return true }

func (r *Reader) Close() error {
	r.ctx.Free()
	return nil
}

// Rows reads the expression rows at the given row indices, in request order.
func (r *Reader) Rows(indices []int) ([][]float64, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	nGenes := len(r.labels.Genes)
	nSamples := len(r.labels.Samples)
	for _, idx := range indices {
		if idx < 0 || idx >= nGenes {
			return nil, errors.Newf("row index out of range: %d", idx)
		}
	}

	arr, err := tiledb.NewArray(r.ctx, r.arrayURI())
	if err != nil {
		return nil, errors.Wrapf(err, "opening expr array (%s)", r.arrayURI())
	}
	defer arr.Free()
	if err := arr.Open(tiledb.TILEDB_READ); err != nil {
		return nil, errors.Wrap(err, "opening expr array for read")
	}
	defer arr.Close()

	sub, err := arr.NewSubarray()
	if err != nil {
		return nil, errors.Wrap(err, "creating subarray")
	}
	defer sub.Free()

	// One [idx,idx] range per requested row. Ranges come back in the order
	// they were added, so the output rows line up with indices.
	for _, idx := range indices {
		if err := sub.AddRangeByName("gene", tiledb.MakeRange[int64](int64(idx), int64(idx))); err != nil {
			return nil, errors.Wrap(err, "adding gene range")
		}
	}
	if err := sub.AddRangeByName("sample", tiledb.MakeRange[int64](0, int64(nSamples-1))); err != nil {
		return nil, errors.Wrap(err, "adding sample range")
	}

	q, err := tiledb.NewQuery(r.ctx, arr)
	if err != nil {
		return nil, errors.Wrap(err, "creating query")
	}
	defer q.Free()
	if err := q.SetSubarray(sub); err != nil {
		return nil, errors.Wrap(err, "setting subarray")
	}
	if err := q.SetLayout(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Wrap(err, "setting query layout")
	}

	out := make([]float32, len(indices)*nSamples)
	if _, err := q.SetDataBuffer("expr", out); err != nil {
		return nil, errors.Wrap(err, "setting expr buffer")
	}

	if err := q.Submit(); err != nil {
		return nil, errors.Wrap(err, "query submit")
	}
	status, err := q.Status()
	if err != nil {
		return nil, errors.Wrap(err, "query status")
	}
	if status != tiledb.TILEDB_COMPLETED {
		return nil, errors.Newf("unexpected query status: %v", status)
	}

	elems, err := q.ResultBufferElements()
	if err != nil {
		return nil, errors.Wrap(err, "reading result buffer elements")
	}
	if got := int(elems["expr"][1]); got != len(out) {
		return nil, errors.Newf("short read from expr array: %d of %d values", got, len(out))
	}

	rows := make([][]float64, len(indices))
	for i := range indices {
		row := make([]float64, nSamples)
		for j := 0; j < nSamples; j++ {
			row[j] = float64(out[i*nSamples+j])
		}
		rows[i] = row
	}
	return rows, nil
}
