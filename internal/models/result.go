package models

// ExtractionResult splits a raw model reply into prose and the markup block.
type ExtractionResult struct {
	Explanation string `json:"explanation"`
	Code        string `json:"code"`
}

// GenerateResult is what a website generation hands back to callers.
// Error is empty on success; Kind classifies the failure for callers that
// need to map it (HTTP status, metrics label).
type GenerateResult struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
	Error       string `json:"error"`
	Kind        string `json:"-"`
}

// Failed reports whether the generation produced an error.
func (r GenerateResult) Failed() bool {
	return r.Error != ""
}

// Status summarises the agent for the status endpoint.
type Status struct {
	HasAPIKey          bool `json:"has_api_key"`
	HasGeneratedCode   bool `json:"has_generated_code"`
	ConversationLength int  `json:"conversation_length"`
}
