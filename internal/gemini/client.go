package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Message is a chat turn. Role is "user" or "model".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema describes a function parameter object offered to the model.
type Schema struct {
	Type       string
	Properties map[string]SchemaProperty
	Required   []string
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string
	Description string
	Items       *SchemaProperty
}

// FunctionDecl is a callable operation offered to the model during
// function-calling generation.
type FunctionDecl struct {
	Name        string
	Description string
	Parameters  Schema
}

// FunctionCall is one operation the model asked to invoke.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// GenerateRequest configures a single generateContent call.
type GenerateRequest struct {
	Messages        []Message
	Functions       []FunctionDecl // non-empty enables automatic function calling
	Temperature     float32
	TopK            float32
	TopP            float32
	MaxOutputTokens int32
	SafetyFiltered  bool // apply BLOCK_MEDIUM_AND_ABOVE across all harm categories
}

// GenerateResult carries the model's text and any requested function calls.
type GenerateResult struct {
	Text  string
	Calls []FunctionCall
}

// Client wraps the Google Gen AI SDK for text generation and embeddings.
type Client struct {
	client *genai.Client
}

// New creates a Client authenticated against the Gemini API.
func New(ctx context.Context, apiKey string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{client: c}, nil
}

// Generate runs one generateContent call and flattens the first candidate
// into text plus function calls.
func (c *Client) Generate(ctx context.Context, model string, req GenerateRequest) (GenerateResult, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, &genai.Content{
			Role:  m.Role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		TopK:            genai.Ptr(req.TopK),
		TopP:            genai.Ptr(req.TopP),
		MaxOutputTokens: req.MaxOutputTokens,
	}

	if len(req.Functions) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Functions)}}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}

	if req.SafetyFiltered {
		config.SafetySettings = safetySettings()
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate content: %w", err)
	}

	return flattenResponse(resp), nil
}

// Embed returns the embedding vector for the given text using the specified model.
func (c *Client) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	resp, err := c.client.Models.EmbedContent(ctx, model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed: empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}

func flattenResponse(resp *genai.GenerateContentResponse) GenerateResult {
	var result GenerateResult
	if resp == nil || len(resp.Candidates) == 0 {
		return result
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return result
	}
	for _, part := range cand.Content.Parts {
		if part.Text != "" {
			result.Text += part.Text
		}
		if part.FunctionCall != nil {
			result.Calls = append(result.Calls, FunctionCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	return result
}

func toDeclarations(fns []FunctionDecl) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, len(fns))
	for i, fn := range fns {
		decls[i] = &genai.FunctionDeclaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  toSchema(fn.Parameters),
		}
	}
	return decls
}

func toSchema(s Schema) *genai.Schema {
	out := &genai.Schema{
		Type:     toType(s.Type),
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toPropertySchema(p)
		}
	}
	return out
}

func toPropertySchema(p SchemaProperty) *genai.Schema {
	out := &genai.Schema{
		Type:        toType(p.Type),
		Description: p.Description,
	}
	if p.Items != nil {
		out.Items = toPropertySchema(*p.Items)
	}
	return out
}

func toType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, cat := range categories {
		settings[i] = &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockMediumAndAbove,
		}
	}
	return settings
}
