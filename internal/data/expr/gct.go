package expr

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
)

// LoadGCT loads a dataset from a GCT 1.2 or 1.3 expression file,
// transparently decompressing files that end in .gz.
func LoadGCT(id, name, path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dataset %s", id)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %s: opening gzip stream", id)
		}
		defer zr.Close()
		r = zr
	}
	return ParseGCT(id, name, path, r)
}

// ParseGCT parses a GCT expression file. Row identity comes from the
// Description column, which carries the gene symbol, falling back to the
// Name column when the description is empty. Identifiers are upper-cased
// with trailing version suffixes stripped, so ENSG00000157764.13 and
// BRAF-style symbols land in the same namespace the validation layer uses.
func ParseGCT(id, name, source string, r io.Reader) (*Dataset, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<26)

	if !sc.Scan() {
		return nil, errors.Newf("dataset %s: empty GCT file", id)
	}
	version := strings.TrimSpace(sc.Text())
	if !strings.HasPrefix(version, "#1.") {
		return nil, errors.Newf("dataset %s: unsupported GCT version line %q", id, version)
	}

	if !sc.Scan() {
		return nil, errors.Newf("dataset %s: missing GCT dimension line", id)
	}
	dims := strings.Fields(sc.Text())
	if len(dims) < 2 {
		return nil, errors.Newf("dataset %s: malformed GCT dimension line %q", id, sc.Text())
	}
	nRows, err := strconv.Atoi(dims[0])
	if err != nil {
		return nil, errors.Newf("dataset %s: invalid GCT row count %q", id, dims[0])
	}
	nCols, err := strconv.Atoi(dims[1])
	if err != nil {
		return nil, errors.Newf("dataset %s: invalid GCT column count %q", id, dims[1])
	}

	if !sc.Scan() {
		return nil, errors.Newf("dataset %s: missing GCT header line", id)
	}
	header := strings.Split(sc.Text(), "\t")
	if len(header) < 3 {
		return nil, errors.Newf("dataset %s: GCT header has no sample columns", id)
	}
	samples := append([]string(nil), header[2:]...)
	if len(samples) != nCols {
		return nil, errors.Newf("dataset %s: GCT declares %d samples, header has %d", id, nCols, len(samples))
	}

	genes := make([]string, 0, nRows)
	values := make([][]float64, 0, nRows)
	line := 3
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != len(header) {
			return nil, errors.Newf("dataset %s: GCT line %d has %d fields, want %d", id, line, len(fields), len(header))
		}
		sym := CleanSymbol(fields[1])
		if sym == "" {
			sym = CleanSymbol(fields[0])
		}
		row := make([]float64, len(samples))
		for j, cell := range fields[2:] {
			v, err := parseCell(cell)
			if err != nil {
				return nil, errors.Newf("dataset %s: GCT line %d, column %s: invalid value %q", id, line, samples[j], cell)
			}
			row[j] = v
		}
		genes = append(genes, sym)
		values = append(values, row)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "dataset %s: reading GCT", id)
	}
	if len(genes) != nRows {
		return nil, errors.Newf("dataset %s: GCT declares %d rows, found %d", id, nRows, len(genes))
	}
	return New(id, name, source, genes, samples, values)
}

// CleanSymbol normalizes a gene identifier: trims whitespace, strips any
// trailing dot-separated version suffix, and upper-cases.
func CleanSymbol(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	return strings.ToUpper(s)
}
