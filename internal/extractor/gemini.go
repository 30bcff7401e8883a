package extractor

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiGenerator 通过 Gemini 结构化输出生成 JSON
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator 创建 Gemini 客户端
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) GenerateJSON(ctx context.Context, prompt Prompt) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt.User, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    reportSchema(),
	})
	if err != nil {
		return "", fmt.Errorf("Gemini generate failed: %w", err)
	}
	return resp.Text(), nil
}

// reportSchema 逐人逐日条目数组
func reportSchema() *genai.Schema {
	preserved := "Exact original text with all newlines and numbering preserved."
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"employeeName":   {Type: genai.TypeString},
				"department":     {Type: genai.TypeString},
				"reportDate":     {Type: genai.TypeString},
				"contentSummary": {Type: genai.TypeString, Description: preserved},
				"nextSteps":      {Type: genai.TypeString, Description: preserved},
				"blockers":       {Type: genai.TypeString, Description: preserved},
				"matchedKeywords": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "Keywords from the provided list found in this report",
				},
			},
			Required: []string{"employeeName", "reportDate", "contentSummary"},
		},
	}
}
