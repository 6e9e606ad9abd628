package listing

import "encoding/json"

// GroundedItem is an extracted value with the page quote it came from.
// Quote is nil for items the user added or that came from an existing
// record.
type GroundedItem struct {
	Value string  `json:"value"`
	Quote *string `json:"quote"`
}

// Extraction is the structured content extracted from a listing page.
type Extraction struct {
	Title        string         `json:"title"`
	Company      string         `json:"company"`
	Domain       string         `json:"domain"`
	Location     *string        `json:"location"`
	Description  string         `json:"description"`
	PostedDate   *string        `json:"postedDate"`
	Skills       []GroundedItem `json:"skills"`
	Requirements []GroundedItem `json:"requirements"`
}

// Listing is a persisted listing record.
type Listing struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Domain       string   `json:"domain"`
	Location     *string  `json:"location"`
	Description  string   `json:"description"`
	PostedDate   *string  `json:"postedDate"`
	Skills       []string `json:"skills"`
	Requirements []string `json:"requirements"`
}

// Grounded returns the listing as an Extraction whose items carry no quotes.
func (l Listing) Grounded() Extraction {
	return Extraction{
		Title:        l.Title,
		Company:      l.Company,
		Domain:       l.Domain,
		Location:     l.Location,
		Description:  l.Description,
		PostedDate:   l.PostedDate,
		Skills:       ungrounded(l.Skills),
		Requirements: ungrounded(l.Requirements),
	}
}

func ungrounded(vals []string) []GroundedItem {
	out := make([]GroundedItem, len(vals))
	for i, v := range vals {
		out[i] = GroundedItem{Value: v}
	}
	return out
}

// Optional is a patch field that is either set or left alone.
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// UnmarshalJSON marks the field set. A JSON null sets the zero value.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = v
	o.Set = true
	return nil
}

// ExtractionPatch is a partial Extraction. Only set fields are applied.
type ExtractionPatch struct {
	Title        Optional[string]         `json:"title"`
	Company      Optional[string]         `json:"company"`
	Domain       Optional[string]         `json:"domain"`
	Location     Optional[*string]        `json:"location"`
	Description  Optional[string]         `json:"description"`
	PostedDate   Optional[*string]        `json:"postedDate"`
	Skills       Optional[[]GroundedItem] `json:"skills"`
	Requirements Optional[[]GroundedItem] `json:"requirements"`
}

// Empty reports whether no field is set.
func (p ExtractionPatch) Empty() bool {
	return !p.Title.Set && !p.Company.Set && !p.Domain.Set && !p.Location.Set &&
		!p.Description.Set && !p.PostedDate.Set && !p.Skills.Set && !p.Requirements.Set
}

// Apply returns e with the set fields of p merged in.
func (p ExtractionPatch) Apply(e Extraction) Extraction {
	if p.Title.Set {
		e.Title = p.Title.Value
	}
	if p.Company.Set {
		e.Company = p.Company.Value
	}
	if p.Domain.Set {
		e.Domain = p.Domain.Value
	}
	if p.Location.Set {
		e.Location = p.Location.Value
	}
	if p.Description.Set {
		e.Description = p.Description.Value
	}
	if p.PostedDate.Set {
		e.PostedDate = p.PostedDate.Value
	}
	if p.Skills.Set {
		e.Skills = append([]GroundedItem(nil), p.Skills.Value...)
	}
	if p.Requirements.Set {
		e.Requirements = append([]GroundedItem(nil), p.Requirements.Value...)
	}
	return e
}

// MarshalJSON emits only the set fields.
func (p ExtractionPatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	if p.Title.Set {
		out["title"] = p.Title.Value
	}
	if p.Company.Set {
		out["company"] = p.Company.Value
	}
	if p.Domain.Set {
		out["domain"] = p.Domain.Value
	}
	if p.Location.Set {
		out["location"] = p.Location.Value
	}
	if p.Description.Set {
		out["description"] = p.Description.Value
	}
	if p.PostedDate.Set {
		out["postedDate"] = p.PostedDate.Value
	}
	if p.Skills.Set {
		out["skills"] = p.Skills.Value
	}
	if p.Requirements.Set {
		out["requirements"] = p.Requirements.Value
	}
	return json.Marshal(out)
}
