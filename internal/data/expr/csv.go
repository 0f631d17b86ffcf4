package expr

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// LoadCSV loads a dataset from the canonical CSV layout: a header row with
// sample labels after a leading gene column, then one numeric row per gene.
func LoadCSV(id, name, path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dataset %s", id)
	}
	defer f.Close()
	return ParseCSV(id, name, path, f)
}

// ParseCSV parses the canonical CSV layout from r. Empty cells and NA
// markers are read as NaN; the clustering pipeline treats such rows as
// uninformative rather than failing.
func ParseCSV(id, name, source string, r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %s: reading CSV header", id)
	}
	if len(header) < 2 {
		return nil, errors.Newf("dataset %s: CSV header has no sample columns", id)
	}
	samples := append([]string(nil), header[1:]...)

	var genes []string
	var values [][]float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %s: CSV line %d", id, line)
		}
		row := make([]float64, len(samples))
		for j, cell := range rec[1:] {
			v, err := parseCell(cell)
			if err != nil {
				return nil, errors.Newf("dataset %s: line %d, column %s: invalid value %q", id, line, samples[j], cell)
			}
			row[j] = v
		}
		genes = append(genes, rec[0])
		values = append(values, row)
	}
	return New(id, name, source, genes, samples, values)
}

// WriteCSV writes the dataset in the canonical CSV layout.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"gene"}, d.samples...)); err != nil {
		return errors.Wrap(err, "writing CSV header")
	}
	row := make([]string, len(d.samples)+1)
	for i, g := range d.genes {
		row[0] = g
		for j, v := range d.data.RawRowView(i) {
			if math.IsNaN(v) {
				row[j+1] = ""
			} else {
				row[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "writing CSV row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing CSV")
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch cell {
	case "", "NA", "N/A", "NaN", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
