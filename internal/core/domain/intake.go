package domain

// IngestRequest is one intake call: a target mandant and the offered files.
type IngestRequest struct {
	MandantID       string
	UploaderID      string
	AllowDuplicates bool
	Offers          []FileOffer
}

// IngestResult reports per-file outcomes for one intake call. Rejections
// happened before any network step; Files carry the registry state (including
// per-file errors) of everything that passed validation.
type IngestResult struct {
	Batch      *Batch      `json:"batch"`
	Files      []Document  `json:"files"`
	Rejections []Rejection `json:"rejections,omitempty"`
}

// DuplicateCheck is the advisory answer for one fingerprint. Unknown means the
// registry could not be reached; intake fails open in that case.
type DuplicateCheck struct {
	Duplicate  bool   `json:"duplicate"`
	Unknown    bool   `json:"unknown,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}
