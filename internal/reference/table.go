// Package reference loads and serves the curated CPIC reference table that
// maps (gene, diplotype) pairs to canonical phenotypes and EHR priority
// annotations. The table is loaded once at startup and is immutable
// afterwards, so lookups are safe from any number of goroutines.
package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgxbridge/internal/domain"
)

// Expected CSV header, in column order.
var expectedHeader = []string{
	"Gene",
	"Diplotype",
	"Phenotype_CPIC_Format",
	"Phenotype_Simplified",
	"Phenotype_Category",
	"Activity_Score",
	"EHR_Priority",
}

// Entry is one curated reference row. ActivityScore stays a string because
// the source data mixes numeric scores with blanks and annotations like
// "n/a".
type Entry struct {
	Gene                string `json:"gene"`
	Diplotype           string `json:"diplotype"`
	PhenotypeFull       string `json:"phenotype_cpic_format"`
	PhenotypeSimplified string `json:"phenotype_simplified"`
	Category            string `json:"phenotype_category"`
	ActivityScore       string `json:"activity_score,omitempty"`
	EHRPriority         string `json:"ehr_priority"`
}

// IsHighRisk reports whether the entry carries the actionable EHR priority
// marker.
func (e *Entry) IsHighRisk() bool {
	return e.EHRPriority == domain.HighRiskMarker
}

// Stats summarizes a loaded table.
type Stats struct {
	Rows    int            `json:"rows"`
	Genes   int            `json:"genes"`
	PerGene map[string]int `json:"per_gene"`
}

type lookupKey struct {
	gene      string
	diplotype string
}

// Table is an immutable in-memory index over the reference CSV.
type Table struct {
	entries map[lookupKey]Entry
	perGene map[string]int
	rows    int
	path    string
}

// New builds a table from already-parsed entries. Used by tests and by
// embedders that carry reference data in code. First occurrence wins on
// duplicate (gene, diplotype) keys, matching CSV load order semantics.
func New(entries []Entry) *Table {
	t := &Table{
		entries: make(map[lookupKey]Entry, len(entries)),
		perGene: make(map[string]int),
	}
	for _, e := range entries {
		t.add(e)
	}
	return t
}

func (t *Table) add(entry Entry) {
	key := lookupKey{gene: domain.NormalizeGene(entry.Gene), diplotype: entry.Diplotype}
	if _, dup := t.entries[key]; !dup {
		t.entries[key] = entry
	}
	t.perGene[key.gene]++
	t.rows++
}

// Load reads and indexes the reference CSV. Any problem with the file is a
// fatal configuration error for the caller: the pipeline must not start
// without the table.
func Load(path string, log *logrus.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening reference table: %w", err)
	}
	defer f.Close()

	table, err := parse(f, path)
	if err != nil {
		return nil, err
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"path":  path,
			"rows":  table.rows,
			"genes": len(table.perGene),
		}).Info("Reference table loaded")
	}
	return table, nil
}

func parse(r io.Reader, path string) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(expectedHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading reference table header: %w", err)
	}
	// Tolerate a UTF-8 BOM on exported spreadsheets.
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	for i, col := range expectedHeader {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("reference table %s: column %d is %q, want %q", path, i, header[i], col)
		}
	}

	table := &Table{
		entries: make(map[lookupKey]Entry),
		perGene: make(map[string]int),
		path:    path,
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reference table %s line %d: %w", path, line, err)
		}

		entry := Entry{
			Gene:                strings.TrimSpace(record[0]),
			Diplotype:           strings.TrimSpace(record[1]),
			PhenotypeFull:       strings.TrimSpace(record[2]),
			PhenotypeSimplified: strings.TrimSpace(record[3]),
			Category:            strings.TrimSpace(record[4]),
			ActivityScore:       strings.TrimSpace(record[5]),
			EHRPriority:         strings.TrimSpace(record[6]),
		}
		if entry.Gene == "" || entry.Diplotype == "" {
			return nil, fmt.Errorf("reference table %s line %d: empty gene or diplotype", path, line)
		}
		table.add(entry)
	}

	return table, nil
}

// Lookup resolves a (gene, diplotype) pair to its reference entry. The gene
// is normalized first; when the exact diplotype misses, the allele-reversed
// form is tried, so "*1/*4" and "*4/*1" resolve identically.
func (t *Table) Lookup(gene, diplotype string) (Entry, bool) {
	g := domain.NormalizeGene(gene)
	d := strings.TrimSpace(diplotype)

	if entry, ok := t.entries[lookupKey{gene: g, diplotype: d}]; ok {
		return entry, true
	}
	if rev := reverseDiplotype(d); rev != d {
		if entry, ok := t.entries[lookupKey{gene: g, diplotype: rev}]; ok {
			return entry, true
		}
	}
	return Entry{}, false
}

// reverseDiplotype swaps the two alleles of a slash-delimited diplotype.
// Anything that does not split into exactly two parts comes back unchanged.
func reverseDiplotype(diplotype string) string {
	parts := strings.Split(diplotype, "/")
	if len(parts) != 2 {
		return diplotype
	}
	return parts[1] + "/" + parts[0]
}

// Stats returns row and gene counts for health and CLI reporting.
func (t *Table) Stats() Stats {
	perGene := make(map[string]int, len(t.perGene))
	for g, n := range t.perGene {
		perGene[g] = n
	}
	return Stats{Rows: t.rows, Genes: len(t.perGene), PerGene: perGene}
}

// Path returns the file the table was loaded from.
func (t *Table) Path() string {
	return t.path
}
