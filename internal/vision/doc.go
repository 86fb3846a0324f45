// Package vision defines the contract for the external vision backend that
// analyzes images. It abstracts the details of the model API integration
// (Gemini), allowing the processing queue to run description, tag and text
// extraction steps without coupling to a specific external service.
package vision
