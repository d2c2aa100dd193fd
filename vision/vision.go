// Package vision wraps the hosted AI model used for describing images and
// summarizing extracted text. The collaborator is optional; callers hold a
// nil *Client when no API key is configured and fall back to local OCR.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrQuotaExceeded is returned when the provider rejects a request because
// the account is over its usage quota.
var ErrQuotaExceeded = errors.New("vision: provider quota exceeded")

const defaultModel = "gpt-4o-mini"

const describePrompt = `Describe this image in 2-4 sentences. If the image contains text, transcribe it verbatim after the description.`

const summarizePrompt = `Summarize the following document text in 2-4 sentences. Reply with the summary only.`

// A Client calls the hosted model. The zero-value pointer (nil) is a valid
// "not configured" client; only NewClient returns a usable one.
type Client struct {
	Model string

	api *openai.Client
}

// NewClient returns a vision client using the given API key, or nil if the
// key is empty. A nil *Client is safe to pass around and simply means the
// collaborator is not configured.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		Model: defaultModel,
		api:   openai.NewClient(apiKey),
	}
}

// NewClientFromEnv builds a client from OPENAI_API_KEY, and honors
// OPENAI_MODEL when set. Returns nil when no key is present.
func NewClientFromEnv() *Client {
	c := NewClient(os.Getenv("OPENAI_API_KEY"))
	if c != nil {
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			c.Model = model
		}
	}
	return c
}

// DescribeImage asks the model for a short description of the image,
// including a transcription of any visible text.
func (c *Client) DescribeImage(image []byte, mimeType string) (string, error) {
	uri := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	resp, err := c.api.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: describePrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL: uri,
				}},
			},
		}},
	})
	if err != nil {
		return "", wrapErr(err)
	}
	return firstChoice(resp)
}

// SummarizeText asks the model for a short summary of text.
func (c *Client) SummarizeText(text string) (string, error) {
	resp, err := c.api.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizePrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", wrapErr(err)
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", errors.New("vision: empty response from provider")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func wrapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, apiErr.Message)
	}
	return err
}
