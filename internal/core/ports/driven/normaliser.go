package driven

// Normaliser turns raw content of one format into plain text ready for chunking.
type Normaliser interface {
	// Normalise returns the text content. Paragraph breaks are kept as blank lines.
	Normalise(content, mimeType string) (string, error)

	// SupportedTypes lists the MIME types handled. "text/*" and "*/*" are wildcards.
	SupportedTypes() []string

	// Priority breaks ties between matching normalisers (higher wins).
	Priority() int
}

// NormaliserRegistry selects a Normaliser by MIME type.
type NormaliserRegistry interface {
	// Get returns the best match or nil when nothing handles mimeType.
	Get(mimeType string) Normaliser
}
