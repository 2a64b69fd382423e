package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when a client config omits the model.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM for Google's Gemini API.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	errorClassifier *ErrorClassifier
}

// newGoogleProvider creates a Gemini provider from configuration using
// API-key authentication against the Gemini API backend.
func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model},
		client:          client,
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends a GenerateContent request and returns the response
// text plus the API's reported token usage.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, int, int, error) {
	opts = opts.withDefaults(p.GetModel())

	contents := p.buildContents(prompt, opts)
	config := p.buildGenerationConfig(opts)

	resp, err := p.client.Models.GenerateContent(ctx, opts.Model, contents, config)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	var tokensIn, tokensOut int
	if usage := resp.UsageMetadata; usage != nil {
		tokensIn = int(usage.PromptTokenCount)
		tokensOut = int(usage.CandidatesTokenCount)
	}

	return content, tokensIn, tokensOut, nil
}

// buildContents prepends the system prompt to the user prompt, since
// the Gemini API has no separate system role on this path.
func (p *googleProvider) buildContents(prompt string, opts RequestOptions) []*genai.Content {
	finalPrompt := prompt
	if opts.System != "" {
		finalPrompt = fmt.Sprintf("System: %s\n\nUser: %s", opts.System, prompt)
	}
	return []*genai.Content{genai.NewContentFromText(finalPrompt, genai.RoleUser)}
}

func (p *googleProvider) buildGenerationConfig(opts RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if opts.Temperature != nil {
		config.Temperature = genai.Ptr(float32(ClampFloat64(*opts.Temperature, MinTemperature, MaxTemperature)))
	}
	if opts.MaxTokens > 0 {
		if opts.MaxTokens > math.MaxInt32 {
			config.MaxOutputTokens = math.MaxInt32
		} else {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
	}
	if opts.ForceJSON {
		config.ResponseMIMEType = "application/json"
	}

	return config
}

// handleError classifies Gemini API errors, giving content-policy
// blocks special handling so they surface as pair errors with no text.
func (p *googleProvider) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.errorClassifier.ClassifyContextError(err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}

		if containsContentPolicyError(apiErr) {
			return p.errorClassifier.ContentPolicyError("request blocked by safety filters", err)
		}

		return p.errorClassifier.ClassifyHTTPError(apiErr.Code, message, err)
	}

	return NewProviderError("google", ErrorTypeUnknown, 0, "request failed", err)
}

// containsContentPolicyError checks whether a Google API error is a
// content policy violation.
func containsContentPolicyError(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
