package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pansoNote/internal/config"
)

// Service 抽象外部摘要引擎。
type Service interface {
	Summarize(ctx context.Context, text string, courseName string) (string, error)
}

// New 按配置选择摘要后端。
func New(cfg config.SummarizeConfig) (Service, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIService(cfg), nil
	case "zephyr":
		return NewZephyrService(cfg), nil
	default:
		return nil, fmt.Errorf("unknown summarize provider %q", cfg.Provider)
	}
}

const systemPrompt = "당신은 학생들의 학습을 돕는 친절한 조교입니다. 강의 필기 내용을 핵심만 간결하게 요약해 주세요."

// buildUserPrompt 生成面向学生的韩文摘要指令；提供课程名时让
// 模型结合课程语境组织要点。
func buildUserPrompt(text, courseName string) string {
	var b strings.Builder
	if courseName != "" {
		fmt.Fprintf(&b, "다음은 '%s' 강의 판서를 인식한 내용입니다.\n", courseName)
	} else {
		b.WriteString("다음은 강의 판서를 인식한 내용입니다.\n")
	}
	b.WriteString("핵심 개념 위주로 3~5개의 요점으로 요약해 주세요.\n\n")
	b.WriteString(text)
	return b.String()
}

// FailureNote 把摘要失败转成嵌入笔记正文的占位文本。
// 摘要属于尽力而为的增强，失败不应丢弃已识别出的原文。
func FailureNote(err error) string {
	return fmt.Sprintf("[요약 실패: %v]", err)
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
