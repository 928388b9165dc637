package model

// NotSpecified marks a field the source document did not provide.
const NotSpecified = "Not specified"

// UnknownBrand is used in change descriptions when a record has no brand name.
const UnknownBrand = "Unknown"

// Column names, in dataset order.
const (
	FieldBrandName          = "brand_name"
	FieldGenericName        = "generic_name"
	FieldTherapeuticArea    = "therapeutic_area"
	FieldIndication         = "indication"
	FieldSponsor            = "sponsor"
	FieldSubmissionDate     = "submission_date"
	FieldRecommendationDate = "recommendation_date"
	FieldRecommendationType = "recommendation_type"
	FieldRationale          = "rationale"
	FieldDocumentLink       = "document_link"
	FieldExtractionDate     = "extraction_date"
	FieldReportTitle        = "report_title"
	FieldCategory           = "category"
)

// ExtractedFields lists the fields the LLM is asked to fill.
var ExtractedFields = []string{
	FieldBrandName,
	FieldGenericName,
	FieldTherapeuticArea,
	FieldIndication,
	FieldSponsor,
	FieldSubmissionDate,
	FieldRecommendationDate,
	FieldRecommendationType,
	FieldRationale,
}

// SignificantFields are compared between runs; a difference in any of them
// is written to the changelog.
var SignificantFields = []string{
	FieldBrandName,
	FieldRecommendationType,
	FieldRationale,
}

// ExtractedRecord is one row of the dataset. DocumentLink is the key.
type ExtractedRecord struct {
	BrandName          string `csv:"brand_name" json:"brand_name" yaml:"brand_name"`
	GenericName        string `csv:"generic_name" json:"generic_name" yaml:"generic_name"`
	TherapeuticArea    string `csv:"therapeutic_area" json:"therapeutic_area" yaml:"therapeutic_area"`
	Indication         string `csv:"indication" json:"indication" yaml:"indication"`
	Sponsor            string `csv:"sponsor" json:"sponsor" yaml:"sponsor"`
	SubmissionDate     string `csv:"submission_date" json:"submission_date" yaml:"submission_date"`
	RecommendationDate string `csv:"recommendation_date" json:"recommendation_date" yaml:"recommendation_date"`
	RecommendationType string `csv:"recommendation_type" json:"recommendation_type" yaml:"recommendation_type"`
	Rationale          string `csv:"rationale" json:"rationale" yaml:"rationale"`
	DocumentLink       string `csv:"document_link" json:"document_link" yaml:"document_link"`
	ExtractionDate     string `csv:"extraction_date" json:"extraction_date" yaml:"extraction_date"`
	ReportTitle        string `csv:"report_title" json:"report_title" yaml:"report_title"`
	Category           string `csv:"category" json:"category" yaml:"category"`
}

// Field returns the value of the named column and whether the name is known.
func (r *ExtractedRecord) Field(name string) (string, bool) {
	p := r.fieldPtr(name)
	if p == nil {
		return "", false
	}
	return *p, true
}

// SetField assigns the named column. Unknown names return false.
func (r *ExtractedRecord) SetField(name, value string) bool {
	p := r.fieldPtr(name)
	if p == nil {
		return false
	}
	*p = value
	return true
}

func (r *ExtractedRecord) fieldPtr(name string) *string {
	switch name {
	case FieldBrandName:
		return &r.BrandName
	case FieldGenericName:
		return &r.GenericName
	case FieldTherapeuticArea:
		return &r.TherapeuticArea
	case FieldIndication:
		return &r.Indication
	case FieldSponsor:
		return &r.Sponsor
	case FieldSubmissionDate:
		return &r.SubmissionDate
	case FieldRecommendationDate:
		return &r.RecommendationDate
	case FieldRecommendationType:
		return &r.RecommendationType
	case FieldRationale:
		return &r.Rationale
	case FieldDocumentLink:
		return &r.DocumentLink
	case FieldExtractionDate:
		return &r.ExtractionDate
	case FieldReportTitle:
		return &r.ReportTitle
	case FieldCategory:
		return &r.Category
	default:
		return nil
	}
}

// Brand returns the brand name for change descriptions.
func (r *ExtractedRecord) Brand() string {
	if r.BrandName == "" {
		return UnknownBrand
	}
	return r.BrandName
}

// FillMissing replaces empty extracted fields with NotSpecified so the record
// shape is always complete.
func (r *ExtractedRecord) FillMissing() {
	for _, name := range ExtractedFields {
		if v, _ := r.Field(name); v == "" {
			r.SetField(name, NotSpecified)
		}
	}
}
