package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Line 是识别引擎返回的单行结果。
// Box 为四点包围框坐标，本服务仅透传、不参与逻辑。
type Line struct {
	Text       string      `json:"text"`
	Box        [][]float64 `json:"box,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
}

// Result 汇总一次识别调用（可能覆盖多张图片）的产出。
type Result struct {
	Lines []Line
	Text  string
}

// ImageInput 是提交给识别引擎的单张图片。
type ImageInput struct {
	Name string
	Data []byte
}

// Recognizer 抽象外部 OCR 引擎。
type Recognizer interface {
	Recognize(ctx context.Context, images []ImageInput) (*Result, error)
}

// Client 调用 PaddleOCR serving 的 HTTP 接口。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 构造 OCR 客户端。
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type recognizeResponse struct {
	Lines []Line `json:"lines"`
}

// Recognize 逐张提交图片并按返回顺序拼接全部文本行（换行连接）。
// 引擎对某张图片报错或没识别出任何行时该图片贡献空文本，调用方
// 把整体空结果当作"没有识别出文本"处理，而不是致命错误。
func (c *Client) Recognize(ctx context.Context, images []ImageInput) (*Result, error) {
	result := &Result{}
	for _, image := range images {
		lines, err := c.recognizeOne(ctx, image)
		if err != nil {
			return nil, err
		}
		result.Lines = append(result.Lines, lines...)
	}

	texts := make([]string, 0, len(result.Lines))
	for _, line := range result.Lines {
		if line.Text != "" {
			texts = append(texts, line.Text)
		}
	}
	result.Text = strings.Join(texts, "\n")
	return result, nil
}

func (c *Client) recognizeOne(ctx context.Context, image ImageInput) ([]Line, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", image.Name)
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", body)
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request ocr engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, fmt.Errorf("ocr engine status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}
	return decoded.Lines, nil
}
