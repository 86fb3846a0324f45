// Package gemini adapts Google's Gemini API to the narrow interfaces the
// rest of the service consumes: the vision backend that runs analysis
// steps against an image, and the text embedder that powers the vector
// index. Responses are requested as JSON constrained by a per-step schema
// and validated before they cross the package boundary.
package gemini
