package article

// Categories is the fixed set of article categories the pipeline harvests.
var Categories = []string{"technology", "sports", "entertainment", "politics", "science"}

// ValidCategory reports whether name is one of the known categories.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Validity is the tri-state outcome of draft evaluation.
type Validity string

const (
	ValidityPending  Validity = "pending"
	ValidityAccepted Validity = "accepted"
	ValidityRejected Validity = "rejected"
	ValidityError    Validity = "error"
)

// Draft is an in-flight extracted article. It is produced by the extractor,
// refined by the normalizer, scorer, and validator, and either promoted into
// the store or dropped.
type Draft struct {
	SourceURL      string
	Title          string
	Content        string
	MediaURL       string
	Category       string
	Keywords       []string
	RelevanceScore float64
	Validity       Validity
	RejectReason   string
}

// Reject marks the draft rejected with the given reason.
func (d *Draft) Reject(reason string) {
	d.Validity = ValidityRejected
	d.RejectReason = reason
}

// Accept marks the draft as accepted for persistence.
func (d *Draft) Accept() {
	d.Validity = ValidityAccepted
	d.RejectReason = ""
}
