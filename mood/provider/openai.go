package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/theimaginaryfoundation/mentapet/mood"
)

// RetryPolicy holds the waits between classifier attempts. One attempt is
// made per wait plus a final one.
type RetryPolicy struct {
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RateLimitWaits:   []time.Duration{2 * time.Second, 5 * time.Second},
		ServerErrorWaits: []time.Duration{500 * time.Millisecond, 2 * time.Second},
	}
}

// NoRetry makes a single attempt.
func NoRetry() RetryPolicy { return RetryPolicy{} }

func (p RetryPolicy) attempts() int {
	return max(len(p.RateLimitWaits), len(p.ServerErrorWaits)) + 1
}

func CallWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams, policy RetryPolicy) (*responses.Response, error) {
	maxRetries := policy.attempts()
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err != nil {
			var wait time.Duration
			switch {
			case isRateLimitError(err) && attempt < len(policy.RateLimitWaits):
				wait = policy.RateLimitWaits[attempt]
			case isServerError(err) && attempt < len(policy.ServerErrorWaits):
				wait = policy.ServerErrorWaits[attempt]
			default:
				return nil, err
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetries)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

// ChatGenerator streams replies from the chat completions API.
type ChatGenerator struct {
	client *openai.Client
	cfg    mood.GenerationConfig
}

func NewChatGenerator(client *openai.Client, cfg mood.GenerationConfig) *ChatGenerator {
	return &ChatGenerator{client: client, cfg: cfg}
}

func (g *ChatGenerator) Generate(ctx context.Context, req mood.GenerateRequest, emit func(string) error) error {
	if g.client == nil {
		return errors.New("chatGenerator: client is nil")
	}
	if g.cfg.Model == "" {
		return errors.New("chatGenerator: model is empty")
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.Text),
		},
		Temperature: openai.Float(g.cfg.Temperature),
	}
	if g.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(g.cfg.MaxTokens)
	}

	stream := g.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := emit(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	return stream.Err()
}

// classificationResponse documents the classifier output for the schema.
type classificationResponse struct {
	Mood    string   `json:"mood" jsonschema:"enum=happy,enum=calm,enum=sad,enum=stressed"`
	Risk    bool     `json:"risk"`
	Actions []string `json:"actions" jsonschema:"description=Up to 3 tiny gentle suggestions"`
}

var classificationSchema = GenerateSchema[classificationResponse]()

// ResponsesClassifier classifies a finished exchange with a strict JSON schema.
type ResponsesClassifier struct {
	client    *openai.Client
	model     string
	maxTokens int64
	retry     RetryPolicy
}

func NewResponsesClassifier(client *openai.Client, model string, maxTokens int64, retry RetryPolicy) *ResponsesClassifier {
	return &ResponsesClassifier{client: client, model: model, maxTokens: maxTokens, retry: retry}
}

func (c *ResponsesClassifier) Classify(ctx context.Context, text, reply string) ([]byte, error) {
	if c.client == nil {
		return nil, errors.New("responsesClassifier: client is nil")
	}
	if c.model == "" {
		return nil, errors.New("responsesClassifier: model is empty")
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "MoodClassification",
			Schema:      classificationSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Mood, risk and action classification"),
			Type:        "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:        c.model,
		Instructions: openai.String(mood.ClassifierPrompt),
		Temperature:  openai.Float(0),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(mood.ClassifierInput(text, reply), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}
	if c.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(c.maxTokens)
	}

	resp, err := CallWithRetry(ctx, c.client, params, c.retry)
	if err != nil {
		return nil, err
	}
	return []byte(resp.OutputText()), nil
}

func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance marks every object closed and every property required,
// as strict structured outputs demand.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(additionalProps)
	}
}
