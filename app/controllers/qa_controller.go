package controllers

import (
	"io"
	"strconv"
	"strings"

	"github.com/aihub/docqa/app/bootstrap"
	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/knowledge"
	"github.com/aihub/docqa/internal/pipeline"
)

// MaxUploadBytes 上传文件大小上限
const MaxUploadBytes = 64 << 20

// QAController 文档问答接口
type QAController struct {
	BaseController
	app *bootstrap.App
}

// qaResponse 问答成功响应
type qaResponse struct {
	Answer   string                `json:"answer"`
	Strategy knowledge.Strategy    `json:"strategy"`
	Sources  []knowledge.TextChunk `json:"sources"`
	Retries  int                   `json:"retries"`
	RunID    string                `json:"run_id"`
}

// Prepare 获取全局应用实例
func (c *QAController) Prepare() {
	c.app = bootstrap.GetApp()
}

// Ask 上传文档并提问
// POST /api/qa (multipart: file, query, media_type, k, strategy, chunk_size, chunk_overlap)
func (c *QAController) Ask() {
	if c.app == nil || c.app.Orchestrator() == nil {
		c.JSONAppError(apperrors.New(apperrors.KindServiceUnavailable, "pipeline is not initialized"))
		return
	}

	req, err := c.buildRequest()
	if err != nil {
		c.JSONAppError(err)
		return
	}

	outcome, err := c.app.Orchestrator().Run(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(qaResponse{
		Answer:   outcome.Answer.Text,
		Strategy: outcome.Answer.Strategy,
		Sources:  outcome.Answer.Sources,
		Retries:  outcome.Retries,
		RunID:    outcome.RunID,
	})
}

// Formats 返回支持的媒体类型
// GET /api/qa/formats
func (c *QAController) Formats() {
	var types []string
	if c.app != nil && c.app.Orchestrator() != nil {
		types = c.app.Orchestrator().SupportedMediaTypes()
	}
	if types == nil {
		types = []string{}
	}
	c.JSONSuccess(map[string]interface{}{
		"media_types": types,
	})
}

func (c *QAController) buildRequest() (pipeline.Request, error) {
	file, header, err := c.GetFile("file")
	if err != nil {
		return pipeline.Request{}, apperrors.Wrap(apperrors.KindInvalidConfig, "file is required", err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return pipeline.Request{}, apperrors.Wrap(apperrors.KindInvalidConfig, "failed to read upload", err)
	}
	if len(content) > MaxUploadBytes {
		return pipeline.Request{}, apperrors.Newf(apperrors.KindQuotaOrRequest, "file exceeds %d bytes", MaxUploadBytes)
	}

	opts := pipeline.DefaultOptions()
	if cfg := c.app.Config(); cfg != nil {
		opts = pipeline.OptionsFromConfig(cfg.Pipeline)
	}
	opts.Credential = c.credential()

	if opts.TopK, err = c.intParam("k", opts.TopK); err != nil {
		return pipeline.Request{}, err
	}
	if opts.ChunkSize, err = c.intParam("chunk_size", opts.ChunkSize); err != nil {
		return pipeline.Request{}, err
	}
	if opts.ChunkOverlap, err = c.intParam("chunk_overlap", opts.ChunkOverlap); err != nil {
		return pipeline.Request{}, err
	}
	if raw := c.GetString("strategy"); raw != "" {
		if opts.Strategy, err = knowledge.ParseStrategy(raw); err != nil {
			return pipeline.Request{}, err
		}
	}

	return pipeline.Request{
		Document: knowledge.Document{
			Name:      header.Filename,
			MediaType: knowledge.ResolveMediaType(c.GetString("media_type"), header.Filename, content),
			Content:   content,
		},
		Query:   c.GetString("query"),
		Options: opts,
	}, nil
}

func (c *QAController) intParam(key string, def int) (int, error) {
	raw := strings.TrimSpace(c.GetString(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Newf(apperrors.KindInvalidConfig, "%s must be an integer", key)
	}
	return v, nil
}
