package listing

// ApplicationStatus is the pipeline stage of an application.
type ApplicationStatus string

const (
	Saved         ApplicationStatus = "SAVED"
	Applied       ApplicationStatus = "APPLIED"
	Screening     ApplicationStatus = "SCREENING"
	Interview     ApplicationStatus = "INTERVIEW"
	OfferReceived ApplicationStatus = "OFFER_RECEIVED"
	Accepted      ApplicationStatus = "ACCEPTED"
	Rejected      ApplicationStatus = "REJECTED"
	Ghosted       ApplicationStatus = "GHOSTED"
	Withdrawn     ApplicationStatus = "WITHDRAWN"
	Rescinded     ApplicationStatus = "RESCINDED"
)

// ApplicationStatuses lists every status in pipeline order.
var ApplicationStatuses = []ApplicationStatus{
	Saved, Applied, Screening, Interview, OfferReceived,
	Accepted, Rejected, Ghosted, Withdrawn, Rescinded,
}

var applicationLabels = map[ApplicationStatus]string{
	Saved:         "Saved",
	Applied:       "Applied",
	Screening:     "Screening",
	Interview:     "Interview",
	OfferReceived: "Offer Received",
	Accepted:      "Accepted",
	Rejected:      "Rejected",
	Ghosted:       "Ghosted",
	Withdrawn:     "Withdrawn",
	Rescinded:     "Rescinded",
}

// Valid reports whether s is a known status.
func (s ApplicationStatus) Valid() bool {
	_, ok := applicationLabels[s]
	return ok
}

// Label returns the display label, or the raw value when unknown.
func (s ApplicationStatus) Label() string {
	if l, ok := applicationLabels[s]; ok {
		return l
	}
	return string(s)
}

// ParseStatuses keeps the known statuses of raw, in order, dropping
// unknown values and repeats.
func ParseStatuses(raw []string) []ApplicationStatus {
	out := make([]ApplicationStatus, 0, len(raw))
	seen := make(map[ApplicationStatus]bool, len(raw))
	for _, r := range raw {
		s := ApplicationStatus(r)
		if !s.Valid() || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var draftLabels = map[DraftStatus]string{
	StatusPending:          "Pending",
	StatusUnique:           "OK",
	StatusDuplicateURL:     "Duplicate URL",
	StatusDuplicateContent: "Duplicate Content",
	StatusError:            "Error",
}

// Label returns the display label of a draft status.
func (s DraftStatus) Label() string {
	if l, ok := draftLabels[s]; ok {
		return l
	}
	return string(s)
}

// Title returns the row title shown for d.
func Title(d Draft) string {
	switch v := d.(type) {
	case Unique:
		return v.Listing.Title
	case DuplicateURL:
		return v.DuplicateOf.Title
	case DuplicateContent:
		return v.DuplicateOf.Title
	case Failed:
		return "Error"
	case Pending:
		return "Scraping..."
	}
	return ""
}

// Company returns the company shown for d, empty while pending or failed.
func Company(d Draft) string {
	switch v := d.(type) {
	case Unique:
		return v.Listing.Company
	case DuplicateURL:
		return v.DuplicateOf.Company
	case DuplicateContent:
		return v.DuplicateOf.Company
	case Failed, Pending:
		return ""
	}
	return ""
}

// Domain returns the company domain shown for d, empty while pending or
// failed.
func Domain(d Draft) string {
	switch v := d.(type) {
	case Unique:
		return v.Listing.Domain
	case DuplicateURL:
		return v.DuplicateOf.Domain
	case DuplicateContent:
		return v.DuplicateOf.Domain
	case Failed, Pending:
		return ""
	}
	return ""
}
