package domain

// ImageMetadata is the structured output of a fully or partially processed
// image. Fields are populated incrementally as steps complete: description
// first, then tags, then extracted text. IsProcessed is only set once all
// three steps have finished.
type ImageMetadata struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	TextContent string   `json:"text_content"`
	HasText     bool     `json:"has_text"`
	IsProcessed bool     `json:"is_processed"`
}

// Apply merges a completed step's result into the metadata.
func (m *ImageMetadata) Apply(res StepResult) {
	switch res.Kind {
	case StepKindDescription:
		m.Description = res.Description
	case StepKindTags:
		m.Tags = res.Tags
	case StepKindText:
		m.HasText = res.HasText
		if res.HasText {
			m.TextContent = res.Text
		} else {
			m.TextContent = ""
		}
	}
}

// HasContent reports whether any analysis field is populated. Used to
// derive IsProcessed when reconciling stored metadata with a folder scan.
func (m ImageMetadata) HasContent() bool {
	return m.Description != "" || len(m.Tags) > 0 || m.TextContent != ""
}

// Equal reports whether two metadata values carry the same content.
// Used by the synchronizer's read-back verification.
func (m ImageMetadata) Equal(other ImageMetadata) bool {
	if m.Description != other.Description ||
		m.TextContent != other.TextContent ||
		m.HasText != other.HasText ||
		m.IsProcessed != other.IsProcessed {
		return false
	}
	if len(m.Tags) != len(other.Tags) {
		return false
	}
	for i, tag := range m.Tags {
		if other.Tags[i] != tag {
			return false
		}
	}
	return true
}
