package models

// Citation points at the lines of a file a chat answer was grounded on.
type Citation struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}
