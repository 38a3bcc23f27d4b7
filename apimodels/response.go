package apimodels

// Citation is one retrieved passage backing part of a model answer. Numbers
// are 1-based and follow the order in which passages were first observed.
type Citation struct {
	Number int             `json:"citation_number"`
	Source *CitationSource `json:"source,omitempty"`
}

type CitationSource struct {
	Title   string    `json:"title"`
	URI     *string   `json:"uri"`
	Excerpt *string   `json:"excerpt"`
	Pages   *PageSpan `json:"pages,omitempty"`
}

type PageSpan struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// ErrorResponse is the body of every non-streaming error reply.
type ErrorResponse struct {
	Error       string `json:"error"`
	RawResponse string `json:"raw_response,omitempty"`
}

// SummaryResponse wraps a session summary; Summary is either the parsed
// record or, when the model output could not be parsed, the raw text.
type SummaryResponse struct {
	Summary any `json:"summary"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
