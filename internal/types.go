package internal

type ValueKind string

const (
	KindAmount ValueKind = "amount"
	KindRatio  ValueKind = "ratio"
	KindCount  ValueKind = "count"
)

func (k ValueKind) Valid() bool {
	switch k {
	case KindAmount, KindRatio, KindCount:
		return true
	default:
		return false
	}
}

type Unit string

const (
	UnitNone      Unit = "none"
	UnitThousands Unit = "thousands"
	UnitMillions  Unit = "millions"
	UnitBillions  Unit = "billions"
	UnitPercent   Unit = "percent"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidences so that a higher rank is more trustworthy.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

const (
	FlagOutOfRange       = "out_of_range"
	FlagUnitAmbiguous    = "unit_ambiguous"
	FlagCurrencyAmbig    = "currency_ambiguous"
	FlagMultiToken       = "multi_token"
	FlagFuzzyLabel       = "fuzzy_label"
	FlagNextLineValue    = "next_line_value"
	FlagUnitKindMismatch = "unit_kind_mismatch"
	FlagCrossCheckFailed = "cross_check_failed"
)

type MetricDefinition struct {
	StandardName    string    `json:"standard_name" yaml:"standard_name"`
	CandidateLabels []string  `json:"candidate_labels" yaml:"candidate_labels"`
	ValueKind       ValueKind `json:"value_kind" yaml:"value_kind"`
}

// RawMatch is one label occurrence on a page. PageIndex is zero based,
// LabelStart/LabelEnd are byte offsets into LineText.
type RawMatch struct {
	PageIndex    int
	LineIndex    int
	MatchedLabel string
	LineText     string
	PrevLineText string
	NextLineText string
	LabelStart   int
	LabelEnd     int
	Fuzzy        bool
}

type MetricContext struct {
	Prev    string `json:"prev"`
	Current string `json:"current"`
	Next    string `json:"next"`
}

type ExtractedMetric struct {
	MetricName   string        `json:"metric_name"`
	Value        float64       `json:"value"`
	RawValueText string        `json:"raw_value_text"`
	Unit         *Unit         `json:"unit"`
	Currency     *string       `json:"currency"`
	SourcePage   int           `json:"source_page"`
	Confidence   Confidence    `json:"confidence"`
	Flags        []string      `json:"flags"`
	Context      MetricContext `json:"context"`
	MatchedLabel string        `json:"matched_label"`
	Selected     bool          `json:"selected"`
}

func (m *ExtractedMetric) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func (m *ExtractedMetric) AddFlag(flag string) {
	if m.HasFlag(flag) {
		return
	}
	m.Flags = append(m.Flags, flag)
}

type SanityLevel string

const (
	SanityInfo    SanityLevel = "info"
	SanityWarning SanityLevel = "warning"
	SanityError   SanityLevel = "error"
)

type SanityEntry struct {
	Level   SanityLevel `json:"level"`
	Message string      `json:"message"`
}

type SanityReport []SanityEntry

type ExtractionResult struct {
	Items  []ExtractedMetric `json:"items"`
	Sanity SanityReport      `json:"sanity"`
}

// Selected returns the selected record for a metric, or nil.
func (r ExtractionResult) Selected(metricName string) *ExtractedMetric {
	for i := range r.Items {
		if r.Items[i].MetricName == metricName && r.Items[i].Selected {
			return &r.Items[i]
		}
	}
	return nil
}

type DocumentKind string

const (
	DocPDF  DocumentKind = "pdf"
	DocHTML DocumentKind = "html"
	DocXLSX DocumentKind = "xlsx"
	DocText DocumentKind = "text"
)

type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusProcessed DocumentStatus = "processed"
	StatusRejected  DocumentStatus = "rejected"
	StatusFailed    DocumentStatus = "failed"
	StatusExported  DocumentStatus = "exported"
)

type Document struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      DocumentKind   `json:"kind"`
	Path      string         `json:"path"`
	Hash      string         `json:"hash"`
	Size      int64          `json:"size"`
	Pages     int            `json:"pages"`
	Bank      *string        `json:"bank"`
	Period    *string        `json:"period"`
	Source    string         `json:"source"`
	Status    DocumentStatus `json:"status"`
	CreatedAt string         `json:"created_at"`
}

type Review struct {
	Accepted   bool   `json:"accepted"`
	Reviewer   string `json:"reviewer"`
	Note       string `json:"note"`
	ReviewedAt string `json:"reviewed_at"`
}

// StoredMetric is an extracted metric as persisted for one document.
type StoredMetric struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"document_id"`
	ExtractedMetric
	Review *Review `json:"review"`
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    *string
	Sender     *string
	ReceivedAt *string
	Hash       string
	Status     string
	RawRef     string
}

// StoredResult is the persisted extraction of one document.
type StoredResult struct {
	DocumentID string         `json:"document_id"`
	Items      []StoredMetric `json:"items"`
	Sanity     SanityReport   `json:"sanity"`
}

// Selected returns the selected stored record for a metric, or nil.
func (r StoredResult) Selected(metricName string) *StoredMetric {
	for i := range r.Items {
		if r.Items[i].MetricName == metricName && r.Items[i].Selected {
			return &r.Items[i]
		}
	}
	return nil
}

// MetricExportRow is one line of the xlsx metrics sheet.
type MetricExportRow struct {
	DocumentID   string
	DocumentName string
	Bank         *string
	Period       *string
	ExtractionID int64
	MetricName   string
	Value        float64
	RawValueText string
	Unit         *string
	Currency     *string
	SourcePage   int
	Confidence   string
	Flags        string
	MatchedLabel string
	Selected     bool
	ContextLine  string
	ReviewStatus *string
	Reviewer     *string
	ReviewNote   *string
}

// SanityExportRow is one line of the xlsx sanity sheet.
type SanityExportRow struct {
	DocumentID string
	Level      string
	Message    string
}
