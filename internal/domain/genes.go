// Package domain contains core business entities and types for pharmacogenomic
// (PGX) fact extraction and CPIC-based reconciliation.
//
// Reference: Relling MV, Klein TE. CPIC: Clinical Pharmacogenetics Implementation
// Consortium of the Pharmacogenomics Research Network. Clin Pharmacol Ther.
// 2011;89(3):464-7. doi: 10.1038/clpt.2010.279
package domain

import (
	"strings"
)

// ClusterGene is the canonical symbol for the CYP2C gene cluster. Laboratory
// reports spell it many ways ("CYP2C Cluster", "CYP2C-CLUSTER", ...); every
// spelling that mentions both the family and the word "cluster" collapses to
// this symbol.
const ClusterGene = "CYP2C_CLUSTER"

// pgxGenes is the closed extraction vocabulary, in canonical report order.
// Extraction always yields exactly one fact per entry.
var pgxGenes = []string{
	"CYP2B6",
	"CYP2C19",
	"CYP2C9",
	"CYP2D6",
	"CYP3A5",
	"CYP4F2",
	"DPYD",
	"NAT2",
	"NUDT15",
	"SLCO1B1",
	"TPMT",
	"UGT1A1",
	"VKORC1",
}

var pgxGeneSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(pgxGenes))
	for _, g := range pgxGenes {
		set[g] = struct{}{}
	}
	return set
}()

// Genes returns the extraction vocabulary in canonical order. The returned
// slice is a copy; callers may reorder it freely.
func Genes() []string {
	out := make([]string, len(pgxGenes))
	copy(out, pgxGenes)
	return out
}

// IsVocabularyGene reports whether the symbol belongs to the closed
// extraction vocabulary. The cluster alias is not part of the vocabulary.
func IsVocabularyGene(gene string) bool {
	_, ok := pgxGeneSet[strings.ToUpper(strings.TrimSpace(gene))]
	return ok
}

// NormalizeGene canonicalizes a reported gene symbol: trims surrounding
// whitespace, upper-cases, and collapses every CYP2C-cluster spelling to
// ClusterGene. Unrecognized symbols pass through normalized, never rejected.
func NormalizeGene(gene string) string {
	g := strings.ToUpper(strings.TrimSpace(gene))
	if strings.Contains(g, "CYP2C") && strings.Contains(g, "CLUSTER") {
		return ClusterGene
	}
	return g
}

// medicationExamples maps gene symbols to representative affected medications
// by clinical specialty, as surfaced on clinician-facing reports. Entries for
// genes outside the extraction vocabulary (HLA-A, HLA-B, IFNL4) are kept so
// externally supplied facts still render with examples.
var medicationExamples = map[string]string{
	"CYP2B6":        "Infectious Diseases: efavirenz",
	"CYP2C9":        "Cardiology: fluvastatin (Lescol), warfarin (Coumadin); Pain Management: celecoxib (Celebrex)",
	"CYP2C19":       "Cardiology: clopidogrel (Plavix); Gastroenterology: dexlansoprazole (Dexilant), esomeprazole (Nexium), lansoprazole (Prevacid), omeprazole (Prilosec), pantoprazole (Protonix)",
	"CYP2C CLUSTER": "Cardiology: warfarin (Coumadin)",
	"CYP2D6":        "Cardiology: flecainide (Tambocor), metoprolol (Lopressor); Pain Management: codeine, tramadol (Ultram)",
	"CYP3A5":        "Immunosuppression: tacrolimus (Prograf)",
	"CYP4F2":        "Cardiology: warfarin (Coumadin)",
	"DPYD":          "Oncology: fluorouracil, capecitabine (Xeloda); Infectious Diseases: flucytosine (Ancobon)",
	"HLA-A":         "Neurology: carbamazepine (Tegretol), oxcarbazepine (Trileptal)",
	"HLA-B":         "Neurology: carbamazepine (Tegretol); Infectious Diseases: abacavir (Ziagen); Rheumatology: allopurinol (Zyloprim)",
	"IFNL4":         "Infectious Diseases: peginterferon alfa-2a (Pegasys)",
	"NAT2":          "Infectious Diseases: isoniazid",
	"NUDT15":        "Immunosuppression: azathioprine (Imuran), mercaptopurine (Purinethol)",
	"SLCO1B1":       "Cardiology: atorvastatin (Lipitor), simvastatin (Zocor), rosuvastatin (Crestor)",
	"TPMT":          "Immunosuppression: azathioprine (Imuran), mercaptopurine (Purinethol)",
	"UGT1A1":        "Oncology: irinotecan (Camptosar); Infectious Diseases: atazanavir (Reyataz)",
	"VKORC1":        "Cardiology: warfarin (Coumadin)",
}

// MedicationExamples returns the specialty-grouped medication examples for a
// gene, or the empty string when none are known. Matching is case-insensitive
// and tolerates the underscore cluster spelling.
func MedicationExamples(gene string) string {
	key := strings.ToUpper(strings.TrimSpace(gene))
	key = strings.ReplaceAll(key, "_", " ")
	return medicationExamples[key]
}
