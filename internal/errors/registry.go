package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Contract Errors (J001-J019)
	// ============================================

	"J001": {
		Category: CategoryContract,
		Message:  "URL parameter codec missing",
		Detail:   "A URL-synced value was bound without a complete codec. Supply a preset (urlparam.String, urlparam.Strings, ...) or urlparam.Custom.",
		DocURL:   "https://jobtrail.dev/docs/errors/J001",
	},
	"J010": {
		Category: CategoryContract,
		Message:  "Draft id already exists",
		Detail:   "AppendPending was called with an id that is already cached. Use ResetToPending to re-ingest an existing row.",
		DocURL:   "https://jobtrail.dev/docs/errors/J010",
	},
	"J011": {
		Category: CategoryContract,
		Message:  "Draft not found",
		Detail:   "The draft id is not in the cache. It may have been saved or discarded.",
		DocURL:   "https://jobtrail.dev/docs/errors/J011",
	},
	"J012": {
		Category: CategoryContract,
		Message:  "Draft cannot be saved",
		Detail:   "Only unique and duplicate_content drafts can be persisted.",
		DocURL:   "https://jobtrail.dev/docs/errors/J012",
	},
	"J013": {
		Category: CategoryContract,
		Message:  "Invalid reorder index",
		Detail:   "The target index is outside the draft collection.",
		DocURL:   "https://jobtrail.dev/docs/errors/J013",
	},

	// ============================================
	// Transport Errors (J020-J039)
	// ============================================

	"J020": {
		Category: CategoryTransport,
		Message:  "Session not found",
		Detail:   "The session id is invalid or the session has been closed.",
		DocURL:   "https://jobtrail.dev/docs/errors/J020",
	},
	"J021": {
		Category: CategoryTransport,
		Message:  "Malformed request",
		Detail:   "The request body could not be decoded.",
		DocURL:   "https://jobtrail.dev/docs/errors/J021",
	},
	"J022": {
		Category: CategoryTransport,
		Message:  "Upstream request failed",
		Detail:   "The listings API returned an unexpected status.",
		DocURL:   "https://jobtrail.dev/docs/errors/J022",
	},
	"J023": {
		Category: CategoryTransport,
		Message:  "Snapshot not found",
		Detail:   "No draft snapshot has been exported under this key.",
		DocURL:   "https://jobtrail.dev/docs/errors/J023",
	},
	"J024": {
		Category: CategoryTransport,
		Message:  "Invalid snapshot key",
		Detail:   "Snapshot keys may only contain letters, digits, '.', '_' and '-'.",
		DocURL:   "https://jobtrail.dev/docs/errors/J024",
	},

	// ============================================
	// Config Errors (J040-J059)
	// ============================================

	"J040": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "jobtrail.json failed validation.",
		DocURL:   "https://jobtrail.dev/docs/errors/J040",
	},
	"J041": {
		Category: CategoryConfig,
		Message:  "Snapshot storage not configured",
		Detail:   "Export and import need export.bucket to be set.",
		DocURL:   "https://jobtrail.dev/docs/errors/J041",
	},
	"J042": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No jobtrail.json was found at the given location.",
		DocURL:   "https://jobtrail.dev/docs/errors/J042",
	},
	"J043": {
		Category: CategoryConfig,
		Message:  "Config file unreadable",
		Detail:   "jobtrail.json could not be read or parsed.",
		DocURL:   "https://jobtrail.dev/docs/errors/J043",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
