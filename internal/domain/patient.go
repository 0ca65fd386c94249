package domain

// PatientInfo holds the demographic and specimen metadata parsed from a
// report header. Every field is optional; empty means the report did not
// state it. Values are kept verbatim as printed, no date or name
// normalization happens here.
type PatientInfo struct {
	PatientName          string `json:"patient_name,omitempty"`
	DateOfBirth          string `json:"date_of_birth,omitempty"`
	Test                 string `json:"test,omitempty"`
	ReportDate           string `json:"report_date,omitempty"`
	ReportID             string `json:"report_id,omitempty"`
	Cohort               string `json:"cohort,omitempty"`
	SampleType           string `json:"sample_type,omitempty"`
	SampleCollectionDate string `json:"sample_collection_date,omitempty"`
	SampleReceivedDate   string `json:"sample_received_date,omitempty"`
	ProcessedDate        string `json:"processed_date,omitempty"`
	OrderingClinician    string `json:"ordering_clinician,omitempty"`
	NPI                  string `json:"npi,omitempty"`
	IndicationForTesting string `json:"indication_for_testing,omitempty"`
}

// Fields returns the populated fields keyed by their wire names. Empty fields
// are omitted so field-level comparison runs over the union of what either
// side actually reported.
func (p PatientInfo) Fields() map[string]string {
	out := make(map[string]string, 13)
	put := func(name, value string) {
		if value != "" {
			out[name] = value
		}
	}
	put("patient_name", p.PatientName)
	put("date_of_birth", p.DateOfBirth)
	put("test", p.Test)
	put("report_date", p.ReportDate)
	put("report_id", p.ReportID)
	put("cohort", p.Cohort)
	put("sample_type", p.SampleType)
	put("sample_collection_date", p.SampleCollectionDate)
	put("sample_received_date", p.SampleReceivedDate)
	put("processed_date", p.ProcessedDate)
	put("ordering_clinician", p.OrderingClinician)
	put("npi", p.NPI)
	put("indication_for_testing", p.IndicationForTesting)
	return out
}

// IsEmpty reports whether no field was populated.
func (p PatientInfo) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// Set assigns a value by wire name. Unknown names are ignored, which lets
// parsers work from the alias table without a second dispatch switch.
func (p *PatientInfo) Set(name, value string) {
	switch name {
	case "patient_name":
		p.PatientName = value
	case "date_of_birth":
		p.DateOfBirth = value
	case "test":
		p.Test = value
	case "report_date":
		p.ReportDate = value
	case "report_id":
		p.ReportID = value
	case "cohort":
		p.Cohort = value
	case "sample_type":
		p.SampleType = value
	case "sample_collection_date":
		p.SampleCollectionDate = value
	case "sample_received_date":
		p.SampleReceivedDate = value
	case "processed_date":
		p.ProcessedDate = value
	case "ordering_clinician":
		p.OrderingClinician = value
	case "npi":
		p.NPI = value
	case "indication_for_testing":
		p.IndicationForTesting = value
	}
}

// Get returns the value for a wire name, empty when unset or unknown.
func (p PatientInfo) Get(name string) string {
	return p.Fields()[name]
}

// Similarity Models

// GeneSimilarity scores one gene's agreement between two extraction runs.
type GeneSimilarity struct {
	Genotype  float64 `json:"genotype"`
	Phenotype float64 `json:"phenotype"`
	Overall   float64 `json:"overall"`
}

// SimilarityReport is the field-by-field agreement between two extraction
// runs of the same document. Scores are in [0, 1], rounded to three decimals.
type SimilarityReport struct {
	PatientFields map[string]float64        `json:"patient_fields,omitempty"`
	PatientScore  float64                   `json:"patient_score"`
	Genes         map[string]GeneSimilarity `json:"genes"`
	GeneScore     float64                   `json:"gene_score"`
	OverallScore  float64                   `json:"overall_score"`
}
