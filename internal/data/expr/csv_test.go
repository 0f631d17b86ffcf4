package expr

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCSV = `gene,cortex,cerebellum,thalamus
BRCA1,1.5,2.5,3.5
tp53,0,4,
GAPDH,10,10,10
`

func TestParseCSV(t *testing.T) {
	d, err := ParseCSV("csv", "CSV", "test", strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV error: %v", err)
	}

	if got := d.Meta().NGenes; got != 3 {
		t.Fatalf("n_genes: got %d want 3", got)
	}
	if got := d.Samples(); len(got) != 3 || got[0] != "cortex" {
		t.Fatalf("unexpected samples: %v", got)
	}

	present, values := d.Rows([]string{"TP53"})
	if len(present) != 1 {
		t.Fatalf("TP53 not found")
	}
	if !math.IsNaN(values[0][2]) {
		t.Fatalf("empty cell should parse as NaN, got %v", values[0][2])
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "no samples", in: "gene\nBRCA1\n"},
		{name: "bad value", in: "gene,s1\nBRCA1,abc\n"},
		{name: "ragged row", in: "gene,s1,s2\nBRCA1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCSV("bad", "Bad", "", strings.NewReader(tt.in)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	d, err := LoadCSV("disk", "Disk", path)
	if err != nil {
		t.Fatalf("LoadCSV error: %v", err)
	}
	if !d.Has("GAPDH") {
		t.Fatal("GAPDH missing after load")
	}
	if d.Meta().Source != path {
		t.Fatalf("source: got %q want %q", d.Meta().Source, path)
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	d, err := ParseCSV("rt", "RT", "", strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV error: %v", err)
	}

	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV error: %v", err)
	}

	again, err := ParseCSV("rt", "RT", "", &buf)
	if err != nil {
		t.Fatalf("re-parse error: %v", err)
	}
	if len(again.Genes()) != len(d.Genes()) {
		t.Fatalf("gene count changed: got %d want %d", len(again.Genes()), len(d.Genes()))
	}
	_, orig := d.Rows([]string{"BRCA1"})
	_, back := again.Rows([]string{"BRCA1"})
	for j := range orig[0] {
		if orig[0][j] != back[0][j] {
			t.Fatalf("value %d changed in round trip: %v vs %v", j, orig[0], back[0])
		}
	}
}
