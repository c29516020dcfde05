package services

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
	"wikits/internal/apperr"
	"wikits/internal/config"
	"wikits/internal/logger"
)

// TextGenerator 外部文本生成服务
type TextGenerator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
	StreamText(ctx context.Context, system, prompt string, onDelta func(delta string)) (string, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// LLMService OpenAI 兼容的 chat/completions 客户端
type LLMService struct {
	baseURL string
	token   string
	model   string
	client  *http.Client
	log     *logger.Logger
}

func NewLLMService(cfg *config.Config, baseLog *logger.Logger) *LLMService {
	return &LLMService{
		baseURL: strings.TrimRight(cfg.LLMBaseURL, "/"),
		token:   cfg.LLMToken,
		model:   cfg.LLMModel,
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     baseLog.With("service", "LLMService"),
	}
}

func (s *LLMService) configured() bool {
	return s.baseURL != "" && s.model != ""
}

func (s *LLMService) newRequest(ctx context.Context, system, prompt string, stream bool) (*http.Request, error) {
	body := ChatRequest{
		Model:  s.model,
		Stream: stream,
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

func (s *LLMService) do(req *http.Request) (*http.Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.External("llm", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, apperr.External("llm", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
	return resp, nil
}

// GenerateText 一次性生成
func (s *LLMService) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	if !s.configured() {
		return "", apperr.External("llm", errors.New("LLM_BASE_URL / LLM_MODEL not configured"))
	}
	req, err := s.newRequest(ctx, system, prompt, false)
	if err != nil {
		return "", apperr.Internal(err)
	}
	resp, err := s.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.External("llm", fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", apperr.External("llm", errors.New("empty completion"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// StreamText 流式生成，每个增量回调 onDelta，返回完整文本
func (s *LLMService) StreamText(ctx context.Context, system, prompt string, onDelta func(delta string)) (string, error) {
	if !s.configured() {
		return "", apperr.External("llm", errors.New("LLM_BASE_URL / LLM_MODEL not configured"))
	}
	req, err := s.newRequest(ctx, system, prompt, true)
	if err != nil {
		return "", apperr.Internal(err)
	}
	resp, err := s.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(data string) error {
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// 忽略无法解析的行
			return nil
		}
		if chunk.Error != nil {
			return fmt.Errorf("upstream stream error: %s", chunk.Error.Message)
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content == "" {
				continue
			}
			full.WriteString(c.Delta.Content)
			if onDelta != nil {
				onDelta(c.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		return full.String(), apperr.External("llm", err)
	}
	return full.String(), nil
}

// readSSE 按空行切分事件，合并 data: 行后回调
func readSSE(r io.Reader, onData func(data string) error) error {
	br := bufio.NewReader(r)
	var dataLines []string

	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil
		return onData(data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				line = strings.TrimRight(line, "\r\n")
				if strings.HasPrefix(line, "data:") {
					dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				}
				return flush()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// 注释
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// stripCodeFence 去掉模型常带的 ```json 包裹
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
