package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterChatReq struct {
	Model         string          `json:"model"`
	Messages      []openRouterMsg `json:"messages"`
	Stream        bool            `json:"stream"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message openRouterMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *OpenRouterProvider) check() error {
	if p.Client == nil {
		return errors.New("openrouter: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return errors.New("openrouter: api key is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return errors.New("openrouter: model is required")
	}
	return nil
}

func (p *OpenRouterProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}
	return req, nil
}

func toOpenRouterMsgs(messages []Message) []openRouterMsg {
	out := make([]openRouterMsg, 0, len(messages))
	for _, m := range messages {
		out = append(out, openRouterMsg{Role: m.Role, Content: m.Content})
	}
	return out
}

func httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("openrouter: %s", msg)
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}

	b, err := json.Marshal(openRouterChatReq{
		Model:    strings.TrimSpace(p.Model),
		Stream:   false,
		Messages: toOpenRouterMsgs(messages),
	})
	if err != nil {
		return "", err
	}

	req, err := p.newRequest(ctx, b)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", httpErr(resp)
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openrouter: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams text and reasoning deltas via SSE, ending with a finish
// event that carries the usage block from the final chunk.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []Message) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		if err := p.check(); err != nil {
			errs <- err
			return
		}

		reqBody := openRouterChatReq{
			Model:    strings.TrimSpace(p.Model),
			Stream:   true,
			Messages: toOpenRouterMsgs(messages),
		}
		reqBody.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}

		b, err := json.Marshal(reqBody)
		if err != nil {
			errs <- err
			return
		}

		req, err := p.newRequest(ctx, b)
		if err != nil {
			errs <- err
			return
		}

		if p.Client.Timeout < 30*time.Second {
			p.Client.Timeout = 0
		}

		resp, err := p.Client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- httpErr(resp)
			return
		}

		var usage *Usage

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				events <- StreamEvent{Type: EventFinish, Usage: usage}
				return
			}
			var decoded openRouterStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if decoded.Usage != nil {
				usage = &Usage{
					PromptTokens:     decoded.Usage.PromptTokens,
					CompletionTokens: decoded.Usage.CompletionTokens,
				}
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			delta := decoded.Choices[0].Delta
			if delta.Reasoning != "" {
				events <- StreamEvent{Type: EventReasoningDelta, Text: delta.Reasoning}
			}
			if delta.Content != "" {
				events <- StreamEvent{Type: EventTextDelta, Text: delta.Content}
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return events, errs
}
