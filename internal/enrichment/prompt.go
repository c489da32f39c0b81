package enrichment

const (
	analyzePrefix = "Analyze this content: "
	enhancePrefix = "Enhance this story: "
	comparePrefix = "Compare then vs now for: "
)

// SystemPrompt frames every text stage request.
const SystemPrompt = `You are helping a person reopen a time capsule they sealed in the past.
Write in plain prose. Do not use headings, lists, or code blocks unless the
input already contains them. Keep the tone warm and specific to the material.`

// AnalyzePrompt returns the analyze stage prompt for a content document.
func AnalyzePrompt(doc string) string { return analyzePrefix + doc }

// EnhancePrompt returns the enhance stage prompt for an analysis.
func EnhancePrompt(analysis string) string { return enhancePrefix + analysis }

// ComparePrompt returns the compare stage prompt for a narrative.
func ComparePrompt(narrative string) string { return comparePrefix + narrative }
