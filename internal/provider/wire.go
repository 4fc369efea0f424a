package provider

// Wire-level request and response shapes for the provider's JSON API.
// Kept separate from the public types so API churn stays contained here.

type wirePart struct {
	Text string `json:"text,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type wireChatRequest struct {
	SystemInstruction *wireContent         `json:"systemInstruction,omitempty"`
	Contents          []wireContent        `json:"contents"`
	GenerationConfig  wireGenerationConfig `json:"generationConfig"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
	AvgLogprobs  float64     `json:"avgLogprobs"`
}

type wireUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type wireChatResponse struct {
	Candidates    []wireCandidate `json:"candidates"`
	UsageMetadata *wireUsage      `json:"usageMetadata,omitempty"`
}

type wireEmbedRequest struct {
	Content wireContent `json:"content"`
}

type wireEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type wireSpeechRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		Name string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate,omitempty"`
	} `json:"audioConfig"`
}

type wireSpeechResponse struct {
	AudioContent string `json:"audioContent"` // base64
}

type wireDocumentRequest struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type wireDocumentResponse struct {
	Pages []struct {
		PageNumber int    `json:"pageNumber"`
		Text       string `json:"text"`
	} `json:"pages"`
}

// text joins all text parts of a content block.
func (c wireContent) text() string {
	var s string
	for _, p := range c.Parts {
		s += p.Text
	}
	return s
}
