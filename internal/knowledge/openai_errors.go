package knowledge

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/docqa/internal/errors"
)

// classifyOpenAIError 将go-openai错误映射为错误类别
// transient为瞬时失败时使用的类别（向量化为EmbeddingError，对话为ServiceUnavailable）
func classifyOpenAIError(err error, transient apperrors.Kind, message string) *apperrors.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.FromContext(err)
	}

	status := 0
	code := ""
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		code = apiErrorCode(apiErr)
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || code == "invalid_api_key":
		return apperrors.Wrap(apperrors.KindAuthentication, message+": credential rejected", err)
	case code == "insufficient_quota" || code == "context_length_exceeded":
		return apperrors.Wrap(apperrors.KindQuotaOrRequest, message+": "+code, err)
	case status == http.StatusBadRequest ||
		status == http.StatusNotFound ||
		status == http.StatusConflict ||
		status == http.StatusRequestEntityTooLarge ||
		status == http.StatusUnprocessableEntity:
		return apperrors.Wrap(apperrors.KindQuotaOrRequest, message+": request rejected", err)
	default:
		// 429、5xx、网络错误均视为瞬时失败
		return apperrors.Wrap(transient, message, err).AsRetryable()
	}
}

func apiErrorCode(apiErr *openai.APIError) string {
	if s, ok := apiErr.Code.(string); ok && s != "" {
		return strings.ToLower(s)
	}
	if apiErr.Type != "" && strings.Contains(strings.ToLower(apiErr.Type), "insufficient_quota") {
		return "insufficient_quota"
	}
	return ""
}

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}
