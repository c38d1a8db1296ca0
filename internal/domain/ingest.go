package domain

// Ingestion outcome reasons and error codes
const (
	ReasonNoPhone     = "no_phone"
	ReasonURLMismatch = "url_mismatch"

	IngestErrBadNonce   = "bad_nonce"
	IngestErrMissingURL = "missing_url"
	IngestErrDBInsert   = "db_insert_failed"
	IngestErrSettings   = "settings_unavailable"
)

// PayloadKind tags where click attributes came from
type PayloadKind int

const (
	// PayloadForm carries discrete form fields plus an optional JSON "data" blob
	PayloadForm PayloadKind = iota
	// PayloadJSON carries a JSON body, treated as the blob alone
	PayloadJSON
)

// ClickPayload is the raw inbound shape before canonicalization
type ClickPayload struct {
	Kind   PayloadKind
	Fields map[string]string
	Blob   map[string]interface{}
}

// IngestRequest is everything the pipeline needs from one HTTP request
type IngestRequest struct {
	Nonce         string
	SessionID     string
	Payload       ClickPayload
	Referer       string
	UserAgent     string
	SessionUserID int64
}

// IngestResult is the structured body of the write endpoint
type IngestResult struct {
	OK      bool   `json:"ok"`
	ID      int64  `json:"id,omitempty"`
	Ignored bool   `json:"ignored,omitempty"`
	Reason  string `json:"reason,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}
