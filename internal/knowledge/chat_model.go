package knowledge

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/docqa/internal/errors"
)

// ChatModel 对话补全接口
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CredentialVerifier 可在流水线开始前校验凭证的模型
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context) error
}

const DefaultChatModel = "gpt-4"

// OpenAIChatOptions OpenAI对话配置
type OpenAIChatOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// OpenAIChatModel 基于go-openai的对话模型
type OpenAIChatModel struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIChatModel 创建对话模型
func NewOpenAIChatModel(opts OpenAIChatOptions) (*OpenAIChatModel, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, apperrors.New(apperrors.KindInvalidConfig, "openai credential is required for answer synthesis")
	}
	model := opts.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &OpenAIChatModel{
		client:      newOpenAIClient(opts.APIKey, opts.BaseURL),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Model 返回模型名
func (m *OpenAIChatModel) Model() string {
	return m.model
}

// Complete 发起一次对话补全，空回复返回可重试的EmptyResult
func (m *OpenAIChatModel) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    messages,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err, apperrors.KindServiceUnavailable, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.KindEmptyResult, "chat completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", apperrors.New(apperrors.KindEmptyResult, "chat completion returned empty content")
	}
	return content, nil
}

// VerifyCredential 通过列出模型校验凭证
func (m *OpenAIChatModel) VerifyCredential(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return classifyOpenAIError(err, apperrors.KindServiceUnavailable, "credential check failed")
	}
	return nil
}
