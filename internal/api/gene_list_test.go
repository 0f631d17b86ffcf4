package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestParseGeneList(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		genes, ok := parseGeneList(url.Values{})
		if ok {
			t.Fatalf("expected ok=false, got true")
		}
		if genes != nil {
			t.Fatalf("expected nil genes, got %#v", genes)
		}
	})

	t.Run("commaSeparated", func(t *testing.T) {
		q, _ := url.ParseQuery("genes=GFAP,OLIG2")
		genes, ok := parseGeneList(q)
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"GFAP", "OLIG2"}
		if !reflect.DeepEqual(genes, want) {
			t.Fatalf("expected %#v, got %#v", want, genes)
		}
	})

	t.Run("jsonArray", func(t *testing.T) {
		q, _ := url.ParseQuery(`genes=["GFAP","OLIG2"]`)
		genes, ok := parseGeneList(q)
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"GFAP", "OLIG2"}
		if !reflect.DeepEqual(genes, want) {
			t.Fatalf("expected %#v, got %#v", want, genes)
		}
	})

	t.Run("emptyString", func(t *testing.T) {
		q, _ := url.ParseQuery(`genes=`)
		if _, ok := parseGeneList(q); ok {
			t.Fatalf("expected ok=false for empty value, got true")
		}
	})

	t.Run("repeatedParams", func(t *testing.T) {
		q := url.Values{"genes": {"GFAP", "OLIG2"}}
		genes, ok := parseGeneList(q)
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"GFAP", "OLIG2"}
		if !reflect.DeepEqual(genes, want) {
			t.Fatalf("expected %#v, got %#v", want, genes)
		}
	})
}

func TestParseGeneListBody(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/default/api/heatmap.png", strings.NewReader(""))
		genes, ok, err := parseGeneListBody(r)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if ok {
			t.Fatalf("expected ok=false, got true")
		}
		if genes != nil {
			t.Fatalf("expected nil genes, got %#v", genes)
		}
	})

	t.Run("jsonArray", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/default/api/heatmap.png", strings.NewReader(`["GFAP","OLIG2"]`))
		genes, ok, err := parseGeneListBody(r)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"GFAP", "OLIG2"}
		if !reflect.DeepEqual(genes, want) {
			t.Fatalf("expected %#v, got %#v", want, genes)
		}
	})

	t.Run("jsonObject", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/default/api/heatmap.png", strings.NewReader(`{"genes":["GFAP","OLIG2"]}`))
		genes, ok, err := parseGeneListBody(r)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"GFAP", "OLIG2"}
		if !reflect.DeepEqual(genes, want) {
			t.Fatalf("expected %#v, got %#v", want, genes)
		}
	})

	t.Run("jsonObjectCommaString", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/default/api/heatmap.png", strings.NewReader(`{"genes":"GFAP,OLIG2"}`))
		genes, ok, err := parseGeneListBody(r)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"GFAP", "OLIG2"}
		if !reflect.DeepEqual(genes, want) {
			t.Fatalf("expected %#v, got %#v", want, genes)
		}
	})

	t.Run("formEncodedJson", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/d/default/api/heatmap.png", strings.NewReader(`genes=["GFAP","OLIG2"]`))
		genes, ok, err := parseGeneListBody(r)
		if err != nil {
			t.Fatalf("expected err=nil, got %v", err)
		}
		if !ok {
			t.Fatalf("expected ok=true, got false")
		}
		want := []string{"GFAP", "OLIG2"}
		if !reflect.DeepEqual(genes, want) {
			t.Fatalf("expected %#v, got %#v", want, genes)
		}
	})
}

func TestNormalizeGenes(t *testing.T) {
	got := normalizeGenes([]string{" gfap ", "OLIG2", "", "GFAP", "olig2", "Sox2"})
	want := []string{"GFAP", "OLIG2", "SOX2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}
