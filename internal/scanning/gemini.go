package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const slipReaderInstruction = "You read Thai and English order slips from shopping apps and copy names and ids exactly."

// Gemini reads order slips with a Google Gemini model
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a Gemini extractor with deterministic output
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(1000)

	return &Gemini{client: client, model: model, timeout: 60 * time.Second}, nil
}

// Extract sends the slip and the order prompt in one request
func (g *Gemini) Extract(ctx context.Context, imageData []byte) (*OrderData, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	slip, mimeType, err := prepareImageData(imageData)
	if err != nil {
		return nil, err
	}

	// genai.ImageData takes the subtype ("png"), not the MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.Text(slipReaderInstruction),
		genai.ImageData(strings.TrimPrefix(mimeType, "image/"), slip),
		genai.Text(orderScanPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	text := candidateText(resp)
	if text == "" {
		return nil, errors.New("no response from gemini")
	}

	data, err := parseOrderJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parsing order data: %w", err)
	}
	return data, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
