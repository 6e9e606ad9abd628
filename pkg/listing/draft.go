// Package listing defines the job-listing data model: the draft union held
// by the ingestion workflow, the extracted content it carries, the
// persisted record and the read-path page types.
package listing

import (
	"encoding/json"
	"fmt"
)

// DraftStatus is the discriminant of a Draft.
type DraftStatus string

const (
	StatusPending          DraftStatus = "pending"
	StatusUnique           DraftStatus = "unique"
	StatusDuplicateURL     DraftStatus = "duplicate_url"
	StatusDuplicateContent DraftStatus = "duplicate_content"
	StatusError            DraftStatus = "error"
)

// Draft is one row of the ingestion workflow. The set of implementations is
// closed: Pending, Unique, DuplicateURL, DuplicateContent and Failed.
// ID and URL never change once a draft exists.
type Draft interface {
	DraftID() string
	DraftURL() string
	Status() DraftStatus
	isDraft()
}

// Pending is a draft whose content has not been extracted yet.
type Pending struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Unique is a successfully extracted draft with no known match.
type Unique struct {
	ID      string     `json:"id"`
	URL     string     `json:"url"`
	Listing Extraction `json:"listing"`
	HTML    *string    `json:"html"`
}

// DuplicateURL is a draft whose URL is already persisted. Its content comes
// from the existing record and is read-only.
type DuplicateURL struct {
	ID                       string  `json:"id"`
	URL                      string  `json:"url"`
	DuplicateOf              Listing `json:"duplicateOf"`
	DuplicateOfApplicationID string  `json:"duplicateOfApplicationId"`
}

// DuplicateContent is a draft whose extracted content matches an existing
// listing. Its content stays editable.
type DuplicateContent struct {
	ID                       string     `json:"id"`
	URL                      string     `json:"url"`
	Listing                  Extraction `json:"listing"`
	DuplicateOf              Listing    `json:"duplicateOf"`
	DuplicateOfApplicationID string     `json:"duplicateOfApplicationId"`
	HTML                     *string    `json:"html"`
}

// Failed is a draft whose ingestion failed. HTML holds whatever page content
// was fetched before the failure, if any.
type Failed struct {
	ID    string  `json:"id"`
	URL   string  `json:"url"`
	Error string  `json:"error"`
	HTML  *string `json:"html"`
}

func (d Pending) DraftID() string          { return d.ID }
func (d Unique) DraftID() string           { return d.ID }
func (d DuplicateURL) DraftID() string     { return d.ID }
func (d DuplicateContent) DraftID() string { return d.ID }
func (d Failed) DraftID() string           { return d.ID }

func (d Pending) DraftURL() string          { return d.URL }
func (d Unique) DraftURL() string           { return d.URL }
func (d DuplicateURL) DraftURL() string     { return d.URL }
func (d DuplicateContent) DraftURL() string { return d.URL }
func (d Failed) DraftURL() string           { return d.URL }

func (Pending) Status() DraftStatus          { return StatusPending }
func (Unique) Status() DraftStatus           { return StatusUnique }
func (DuplicateURL) Status() DraftStatus     { return StatusDuplicateURL }
func (DuplicateContent) Status() DraftStatus { return StatusDuplicateContent }
func (Failed) Status() DraftStatus           { return StatusError }

func (Pending) isDraft()          {}
func (Unique) isDraft()           {}
func (DuplicateURL) isDraft()     {}
func (DuplicateContent) isDraft() {}
func (Failed) isDraft()           {}

// WithIdentity returns d with its id and url replaced.
func WithIdentity(d Draft, id, url string) Draft {
	switch v := d.(type) {
	case Pending:
		v.ID, v.URL = id, url
		return v
	case Unique:
		v.ID, v.URL = id, url
		return v
	case DuplicateURL:
		v.ID, v.URL = id, url
		return v
	case DuplicateContent:
		v.ID, v.URL = id, url
		return v
	case Failed:
		v.ID, v.URL = id, url
		return v
	}
	panic(fmt.Sprintf("listing: unknown draft type %T", d))
}

// Savable reports whether d can be persisted.
func Savable(d Draft) bool {
	switch d.(type) {
	case Unique, DuplicateContent:
		return true
	case Pending, DuplicateURL, Failed:
		return false
	}
	return false
}

// ToListing converts a savable draft into the record sent for persistence.
// Grounding quotes are dropped. It reports false for other statuses.
func ToListing(d Draft) (Listing, bool) {
	var ext Extraction
	switch v := d.(type) {
	case Unique:
		ext = v.Listing
	case DuplicateContent:
		ext = v.Listing
	case Pending, DuplicateURL, Failed:
		return Listing{}, false
	default:
		return Listing{}, false
	}
	return Listing{
		ID:           d.DraftID(),
		URL:          d.DraftURL(),
		Title:        ext.Title,
		Company:      ext.Company,
		Domain:       ext.Domain,
		Location:     ext.Location,
		Description:  ext.Description,
		PostedDate:   ext.PostedDate,
		Skills:       values(ext.Skills),
		Requirements: values(ext.Requirements),
	}, true
}

func values(items []GroundedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Value
	}
	return out
}

// MarshalJSON encodes the draft as a flat object tagged with its status.
func (d Pending) MarshalJSON() ([]byte, error) {
	type alias Pending
	return json.Marshal(struct {
		Status DraftStatus `json:"status"`
		alias
	}{StatusPending, alias(d)})
}

// MarshalJSON encodes the draft as a flat object tagged with its status.
func (d Unique) MarshalJSON() ([]byte, error) {
	type alias Unique
	return json.Marshal(struct {
		Status DraftStatus `json:"status"`
		alias
	}{StatusUnique, alias(d)})
}

// MarshalJSON encodes the draft as a flat object tagged with its status.
func (d DuplicateURL) MarshalJSON() ([]byte, error) {
	type alias DuplicateURL
	return json.Marshal(struct {
		Status DraftStatus `json:"status"`
		alias
	}{StatusDuplicateURL, alias(d)})
}

// MarshalJSON encodes the draft as a flat object tagged with its status.
func (d DuplicateContent) MarshalJSON() ([]byte, error) {
	type alias DuplicateContent
	return json.Marshal(struct {
		Status DraftStatus `json:"status"`
		alias
	}{StatusDuplicateContent, alias(d)})
}

// MarshalJSON encodes the draft as a flat object tagged with its status.
func (d Failed) MarshalJSON() ([]byte, error) {
	type alias Failed
	return json.Marshal(struct {
		Status DraftStatus `json:"status"`
		alias
	}{StatusError, alias(d)})
}

// DecodeDraft decodes one status-tagged draft object.
func DecodeDraft(data []byte) (Draft, error) {
	var head struct {
		Status DraftStatus `json:"status"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Status {
	case StatusPending:
		var d Pending
		err := json.Unmarshal(data, &d)
		return d, err
	case StatusUnique:
		var d Unique
		err := json.Unmarshal(data, &d)
		return d, err
	case StatusDuplicateURL:
		var d DuplicateURL
		err := json.Unmarshal(data, &d)
		return d, err
	case StatusDuplicateContent:
		var d DuplicateContent
		err := json.Unmarshal(data, &d)
		return d, err
	case StatusError:
		var d Failed
		err := json.Unmarshal(data, &d)
		return d, err
	}
	return nil, fmt.Errorf("listing: unknown draft status %q", head.Status)
}

// Drafts is an ordered draft collection that decodes from a JSON array of
// status-tagged objects.
type Drafts []Draft

// UnmarshalJSON decodes each element with DecodeDraft.
func (ds *Drafts) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Drafts, 0, len(raw))
	for i, r := range raw {
		d, err := DecodeDraft(r)
		if err != nil {
			return fmt.Errorf("draft %d: %w", i, err)
		}
		out = append(out, d)
	}
	*ds = out
	return nil
}
