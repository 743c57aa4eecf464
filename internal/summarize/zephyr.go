package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pansoNote/internal/config"
)

const defaultZephyrBaseURL = "https://api-inference.huggingface.co/models/HuggingFaceH4/zephyr-7b-beta"

// ZephyrService 通过 HuggingFace inference 接口调用 Zephyr 模型，
// 作为不依赖 OpenAI 的备选摘要后端。
type ZephyrService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewZephyrService 构造 Zephyr 摘要后端。
func NewZephyrService(cfg config.SummarizeConfig) *ZephyrService {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultZephyrBaseURL
	}
	return &ZephyrService{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
	}
}

type zephyrRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int     `json:"max_new_tokens"`
		Temperature    float64 `json:"temperature"`
		ReturnFullText bool    `json:"return_full_text"`
	} `json:"parameters"`
}

type zephyrGenerated struct {
	GeneratedText string `json:"generated_text"`
}

// Summarize 以 Zephyr 的对话模板拼接提示词并返回生成文本。
func (s *ZephyrService) Summarize(ctx context.Context, text string, courseName string) (string, error) {
	prompt := fmt.Sprintf("<|system|>\n%s</s>\n<|user|>\n%s</s>\n<|assistant|>\n",
		systemPrompt, buildUserPrompt(text, courseName))

	payload := zephyrRequest{Inputs: prompt}
	payload.Parameters.MaxNewTokens = 300
	payload.Parameters.Temperature = 0.5
	payload.Parameters.ReturnFullText = false

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request summarize backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("summarize backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded []zephyrGenerated
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode summarize response: %w", err)
	}
	if len(decoded) == 0 {
		return "", fmt.Errorf("summarize backend returned no output")
	}
	return strings.TrimSpace(decoded[0].GeneratedText), nil
}
