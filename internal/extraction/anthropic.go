package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"horse.fit/narratives/internal/narrative"
)

const systemPrompt = `You extract the narrative skeleton of a news article.
Respond with ONLY a JSON object, no prose, of this shape:
{
  "nucleus_entity": "the single primary subject the story revolves around, or empty string if none",
  "actors": [{"name": "entity name", "salience": 1-5}],
  "actions": ["short action phrase"],
  "tensions": ["short phrase naming a conflict or stake"],
  "summary": "one or two sentences"
}
Salience is importance within this article: 5 is the protagonist, 1 is a passing mention.
Use an empty nucleus_entity for listicles, ads, and content without a story subject.`

const maxBodyChars = 6000

// AnthropicExtractor is the production Extractor implementation.
type AnthropicExtractor struct {
	client    *anthropic.Client
	model     anthropic.Model
	modelName string
}

func NewAnthropicExtractor(apiKey, model string) *AnthropicExtractor {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicExtractor{
		client:    &client,
		model:     anthropic.Model(model),
		modelName: model,
	}
}

func (c *AnthropicExtractor) Extract(ctx context.Context, input ArticleInput) (*narrative.Extraction, error) {
	body := truncateBody(input.BodyText, maxBodyChars)
	userPrompt := fmt.Sprintf("Title: %s\nSource: %s\nPublished: %s\n\n%s",
		input.Title, input.Source, input.PublishedAt.Format("2006-01-02"), body)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("no response content from anthropic")
	}

	content := cleanJSONResponse(resp.Content[0].Text)

	var parsed struct {
		NucleusEntity string `json:"nucleus_entity"`
		Actors        []struct {
			Name     string  `json:"name"`
			Salience float64 `json:"salience"`
		} `json:"actors"`
		Actions  []string `json:"actions"`
		Tensions []string `json:"tensions"`
		Summary  string   `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w, content: %s", err, content)
	}

	actors := make(map[string]float64, len(parsed.Actors))
	for _, actor := range parsed.Actors {
		name := strings.TrimSpace(actor.Name)
		if name == "" {
			continue
		}
		actors[name] = clampSalience(actor.Salience)
	}

	return &narrative.Extraction{
		NucleusEntity: strings.TrimSpace(parsed.NucleusEntity),
		Actors:        actors,
		Actions:       cleanPhrases(parsed.Actions),
		Tensions:      cleanPhrases(parsed.Tensions),
		Summary:       strings.TrimSpace(parsed.Summary),
	}, nil
}

// truncateBody cuts at a rune boundary so a multi-byte character is never
// split into invalid UTF-8.
func truncateBody(body string, maxBytes int) string {
	if len(body) <= maxBytes {
		return body
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

func clampSalience(score float64) float64 {
	switch {
	case score < 1:
		return 1
	case score > 5:
		return 5
	default:
		return score
	}
}

func cleanPhrases(raw []string) []string {
	phrases := make([]string, 0, len(raw))
	for _, phrase := range raw {
		trimmed := strings.TrimSpace(phrase)
		if trimmed == "" {
			continue
		}
		phrases = append(phrases, trimmed)
	}
	return phrases
}

func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Some model responses include extra prose around JSON.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
