// Package main is the dataprep tool. It downloads the public BrainSpan and
// GTEx distributions and converts them into the canonical CSV layout the
// heatmap server loads.
package main

import (
	"archive/zip"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-getter"
	"github.com/spf13/cobra"

	"github.com/gene-heatmap/server/internal/data/expr"
	"github.com/gene-heatmap/server/internal/logging"
)

const (
	// RNA-Seq Gencode v10 summarized to genes, from the BrainSpan download API.
	brainspanURL = "https://www.brainspan.org/api/v2/well_known_file_download/267666525"

	// Median gene-level TPM by tissue. archive=false keeps the gzip; the GCT
	// reader decompresses on load.
	gtexURL = "https://storage.googleapis.com/gtex_analysis_v8/rna_seq_data/GTEx_Analysis_2017-06-05_v8_RNASeQCv1.1.9_gene_median_tpm.gct.gz?archive=false"
)

// datasetSpec ties a dataset id to its raw artifact and download source.
type datasetSpec struct {
	ID      string
	Name    string
	RawName string
	URL     string
}

var datasetSpecs = []datasetSpec{
	{
		ID:      "brainspan",
		Name:    "BrainSpan Developmental Transcriptome",
		RawName: "brainspan_raw.zip",
		URL:     brainspanURL,
	},
	{
		ID:      "gtex",
		Name:    "GTEx Median Tissue Expression",
		RawName: "gtex_raw.gct.gz",
		URL:     gtexURL,
	},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var verbose bool

	root := &cobra.Command{
		Use:          "dataprep",
		Short:        "Download and prepare the gene expression datasets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if verbose {
				level = "debug"
			}
			return logging.Initialize(level, false)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newFetchCmd())
	root.AddCommand(newBuildCmd())

	defer logging.Sync()
	return root.ExecuteContext(context.Background())
}

func selectSpecs(dataset string) ([]datasetSpec, error) {
	if dataset == "all" || dataset == "" {
		return datasetSpecs, nil
	}
	for _, spec := range datasetSpecs {
		if spec.ID == dataset {
			return []datasetSpec{spec}, nil
		}
	}
	return nil, errors.Newf("unknown dataset %q (available: all, brainspan, gtex)", dataset)
}

// newFetchCmd creates the fetch command: download the raw distributions into
// DIR/raw. Files already present are kept.
func newFetchCmd() *cobra.Command {
	var (
		dataset = "all"
		dataDir = "./data"
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the raw BrainSpan and GTEx distributions",
		RunE: func(c *cobra.Command, args []string) error {
			specs, err := selectSpecs(dataset)
			if err != nil {
				return err
			}

			rawDir := filepath.Join(dataDir, "raw")
			if err := os.MkdirAll(rawDir, 0755); err != nil {
				return errors.Wrap(err, "creating raw directory")
			}

			for _, spec := range specs {
				dst := filepath.Join(rawDir, spec.RawName)
				if _, err := os.Stat(dst); err == nil {
					logging.Infof("[%s] %s already present, skipping", spec.ID, dst)
					continue
				}

				logging.Infof("[%s] Downloading %s", spec.ID, spec.URL)
				client := &getter.Client{
					Ctx:     c.Context(),
					Src:     spec.URL,
					Dst:     dst,
					Mode:    getter.ClientModeFile,
					Getters: getter.Getters,
				}
				if err := client.Get(); err != nil {
					return errors.Wrapf(err, "downloading %s", spec.ID)
				}
				logging.Infof("[%s] Saved to %s", spec.ID, dst)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", dataset, "dataset to fetch: all, brainspan or gtex")
	cmd.Flags().StringVar(&dataDir, "data-dir", dataDir, "data directory")
	return cmd
}

// newBuildCmd creates the build command: convert the raw artifacts in DIR/raw
// into DIR/<id>_gene_expression.csv.
func newBuildCmd() *cobra.Command {
	var (
		dataset = "all"
		dataDir = "./data"
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Convert the raw distributions into canonical CSV datasets",
		RunE: func(c *cobra.Command, args []string) error {
			specs, err := selectSpecs(dataset)
			if err != nil {
				return err
			}

			for _, spec := range specs {
				raw := filepath.Join(dataDir, "raw", spec.RawName)
				out := filepath.Join(dataDir, spec.ID+"_gene_expression.csv")
				logging.Infof("[%s] Building %s from %s", spec.ID, out, raw)

				var d *expr.Dataset
				switch spec.ID {
				case "brainspan":
					d, err = buildBrainSpan(spec, raw)
				case "gtex":
					d, err = buildGTEx(spec, raw)
				}
				if err != nil {
					return errors.Wrapf(err, "building %s", spec.ID)
				}

				if err := writeDataset(d, out); err != nil {
					return err
				}
				meta := d.Meta()
				logging.Infof("[%s] Wrote %d genes x %d samples", spec.ID, meta.NGenes, meta.NSamples)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", dataset, "dataset to build: all, brainspan or gtex")
	cmd.Flags().StringVar(&dataDir, "data-dir", dataDir, "data directory")
	return cmd
}

// buildBrainSpan extracts the expression matrix CSV from the BrainSpan zip
// and drops rows and columns with no measurements at all.
func buildBrainSpan(spec datasetSpec, rawPath string) (*expr.Dataset, error) {
	zr, err := zip.OpenReader(rawPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening archive")
	}
	defer zr.Close()

	member := pickCSVMember(zr.File)
	if member == nil {
		return nil, errors.New("no CSV file in archive")
	}
	logging.Debugf("[%s] Using archive member %s", spec.ID, member.Name)

	rc, err := member.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "opening archive member %s", member.Name)
	}
	defer rc.Close()

	d, err := expr.ParseCSV(spec.ID, spec.Name, rawPath, rc)
	if err != nil {
		return nil, err
	}

	d, err = d.Filter(func(gene string, values []float64) bool {
		return !allNaN(values)
	})
	if err != nil {
		return nil, err
	}
	return d.FilterSamples(func(sample string, values []float64) bool {
		return !allNaN(values)
	})
}

// buildGTEx parses the gzipped GCT and drops genes with no expression in any
// tissue. Version suffixes are stripped and symbols upper-cased on parse.
func buildGTEx(spec datasetSpec, rawPath string) (*expr.Dataset, error) {
	d, err := expr.LoadGCT(spec.ID, spec.Name, rawPath)
	if err != nil {
		return nil, err
	}
	return d.Filter(func(gene string, values []float64) bool {
		for _, v := range values {
			if !math.IsNaN(v) && v != 0 {
				return true
			}
		}
		return false
	})
}

// pickCSVMember selects the expression matrix from the archive: the member
// named like the matrix when present, otherwise the first CSV. Resource-fork
// entries are skipped.
func pickCSVMember(files []*zip.File) *zip.File {
	var first *zip.File
	for _, f := range files {
		name := f.Name
		if strings.HasPrefix(name, "__MACOSX/") || !strings.HasSuffix(name, ".csv") {
			continue
		}
		if strings.Contains(filepath.Base(name), "expression") {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}

func allNaN(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

func writeDataset(d *expr.Dataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := d.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}
