package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/logger"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address          string
	Username         string
	Password         string
	Database         string
	CollectionPrefix string
	UseTLS           bool
	Timeout          time.Duration
}

// MilvusIndex 每个会话独占一个临时集合，Release时删除
type MilvusIndex struct {
	milvusClient client.Client
	collection   string
	dimension    int
	count        int
	built        bool
}

// NewMilvusIndex 连接Milvus并分配会话集合名
func NewMilvusIndex(ctx context.Context, opts MilvusOptions) (*MilvusIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.CollectionPrefix == "" {
		opts.CollectionPrefix = "docqa_session"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	milvusClient, err := client.NewClient(connectCtx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindServiceUnavailable, "failed to connect to milvus", err)
	}

	return newMilvusIndexWithClient(milvusClient, opts.CollectionPrefix), nil
}

func newMilvusIndexWithClient(c client.Client, prefix string) *MilvusIndex {
	return &MilvusIndex{
		milvusClient: c,
		collection:   sessionCollectionName(prefix),
	}
}

func sessionCollectionName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Collection 返回会话集合名
func (s *MilvusIndex) Collection() string {
	return s.collection
}

// Build 创建集合、写入全部条目并加载
func (s *MilvusIndex) Build(ctx context.Context, entries []IndexEntry) error {
	dimension, err := validateEntries(entries)
	if err != nil {
		return err
	}
	if s.built {
		if err := s.drop(ctx); err != nil {
			return err
		}
	}
	s.count = len(entries)
	s.dimension = dimension
	if len(entries) == 0 {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "docqa session chunks",
		Fields: []*entity.Field{
			{
				Name:       "seq",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     "start",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "end",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", dimension),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return milvusError("failed to create collection", err)
	}
	s.built = true

	index, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "failed to describe hnsw index", err)
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		return milvusError("failed to create index", err)
	}

	seqs := make([]int64, len(entries))
	starts := make([]int64, len(entries))
	ends := make([]int64, len(entries))
	contents := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	for i, entry := range entries {
		seqs[i] = int64(entry.Chunk.Seq)
		starts[i] = int64(entry.Chunk.Start)
		ends[i] = int64(entry.Chunk.End)
		contents[i] = entry.Chunk.Text
		vectors[i] = entry.Vector
	}

	_, err = s.milvusClient.Insert(ctx, s.collection, "",
		entity.NewColumnInt64("seq", seqs),
		entity.NewColumnInt64("start", starts),
		entity.NewColumnInt64("end", ends),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("vector", dimension, vectors),
	)
	if err != nil {
		return milvusError("milvus insert failed", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return milvusError("milvus flush failed", err)
	}
	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return milvusError("milvus load failed", err)
	}
	return nil
}

// Query 检索并按分数、序号重新排序
func (s *MilvusIndex) Query(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, apperrors.Newf(apperrors.KindInvalidConfig, "k must be positive, got %d", k)
	}
	if s.count == 0 {
		return []ScoredChunk{}, nil
	}
	if len(vector) != s.dimension {
		return nil, apperrors.Newf(apperrors.KindInvalidConfig,
			"query vector has dimension %d, index has %d", len(vector), s.dimension)
	}

	// 多取一些候选，保证同分时按序号截断
	limit := min(2*k, s.count)

	sp, _ := entity.NewIndexHNSWSearchParam(max(64, limit))
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"seq", "start", "end", "content"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, milvusError("milvus search failed", err)
	}
	if len(searchResults) == 0 {
		return []ScoredChunk{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, milvusError("milvus search failed", result.Err)
	}

	var seqs, starts, ends []int64
	var contents []string
	for _, field := range result.Fields {
		switch field.Name() {
		case "seq":
			if col, ok := field.(*entity.ColumnInt64); ok {
				seqs = col.Data()
			}
		case "start":
			if col, ok := field.(*entity.ColumnInt64); ok {
				starts = col.Data()
			}
		case "end":
			if col, ok := field.(*entity.ColumnInt64); ok {
				ends = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		}
	}
	if len(seqs) == 0 {
		if idCol, ok := result.IDs.(*entity.ColumnInt64); ok {
			seqs = idCol.Data()
		}
	}

	hits := make([]ScoredChunk, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		var chunk TextChunk
		if i < len(seqs) {
			chunk.Seq = int(seqs[i])
		}
		if i < len(starts) {
			chunk.Start = int(starts[i])
		}
		if i < len(ends) {
			chunk.End = int(ends[i])
		}
		if i < len(contents) {
			chunk.Text = contents[i]
		}
		score := 0.0
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		hits = append(hits, ScoredChunk{Chunk: chunk, Score: score})
	}

	sortByScore(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MilvusIndex) Len() int {
	return s.count
}

// Release 删除会话集合并关闭连接
func (s *MilvusIndex) Release(ctx context.Context) error {
	if s.milvusClient == nil {
		return nil
	}
	err := s.drop(ctx)
	if closeErr := s.milvusClient.Close(); closeErr != nil && err == nil {
		err = milvusError("failed to close milvus client", closeErr)
	}
	return err
}

func (s *MilvusIndex) drop(ctx context.Context) error {
	if !s.built {
		return nil
	}
	if err := s.milvusClient.DropCollection(ctx, s.collection); err != nil {
		logger.Warn("failed to drop session collection",
			zap.String("collection", s.collection),
			zap.Error(err))
		return milvusError("failed to drop collection", err)
	}
	s.built = false
	s.count = 0
	return nil
}

func milvusError(message string, err error) *apperrors.Error {
	e := apperrors.Ensure(err, apperrors.KindServiceUnavailable, message)
	if e.Kind == apperrors.KindServiceUnavailable {
		e.Retryable = true
	}
	return e
}
