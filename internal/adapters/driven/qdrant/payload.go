package qdrant

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/custodia-labs/docindex/internal/core/domain"
)

// Payload field names
const (
	fieldOwnerID        = "owner_id"
	fieldFileID         = "file_id"
	fieldChunkID        = "chunk_id"
	fieldChunkIndex     = "chunk_index"
	fieldContent        = "content"
	fieldStartPosition  = "start_position"
	fieldEndPosition    = "end_position"
	fieldTokenCount     = "token_count"
	fieldCreatedAt      = "created_at"
	fieldFileName       = "file_name"
	fieldMimeType       = "mime_type"
	fieldSource         = "source"
	fieldTitle          = "title"
	fieldTags           = "tags"
	fieldEmbeddingModel = "embedding_model"
	fieldGeneration     = "generation"
)

// pointNamespace derives stable point ids for chunk ids that are not UUIDs
var pointNamespace = uuid.MustParse("6f1c9a52-3b8e-4d4f-9a57-0d2c1e7b8a11")

// pointID returns the chunk id itself when it is a UUID
func pointID(c *domain.Chunk) string {
	if id, err := uuid.Parse(c.ID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(c.OwnerID+"/"+c.ID)).String()
}

func toPoint(c *domain.Chunk) (*qdrant.PointStruct, error) {
	if len(c.Embedding) == 0 {
		return nil, fmt.Errorf("%w: chunk %s has no embedding", domain.ErrInvalidInput, c.ID)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tags := make([]any, len(c.Metadata.Tags))
	for i, t := range c.Metadata.Tags {
		tags[i] = t
	}

	payload, err := qdrant.TryValueMap(map[string]any{
		fieldOwnerID:        c.OwnerID,
		fieldFileID:         c.FileID,
		fieldChunkID:        c.ID,
		fieldChunkIndex:     c.ChunkIndex,
		fieldContent:        c.Content,
		fieldStartPosition:  c.StartPosition,
		fieldEndPosition:    c.EndPosition,
		fieldTokenCount:     c.TokenCount,
		fieldCreatedAt:      createdAt.UnixMilli(),
		fieldFileName:       c.Metadata.FileName,
		fieldMimeType:       c.Metadata.MimeType,
		fieldSource:         c.Metadata.Source,
		fieldTitle:          c.Metadata.Title,
		fieldTags:           tags,
		fieldEmbeddingModel: c.Metadata.EmbeddingModel,
		fieldGeneration:     c.Metadata.Generation,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s payload: %v", domain.ErrInvalidInput, c.ID, err)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(c)),
		Vectors: qdrant.NewVectorsDense(c.Embedding),
		Payload: payload,
	}, nil
}

func chunkFromPayload(p map[string]*qdrant.Value) *domain.Chunk {
	str := func(k string) string { return p[k].GetStringValue() }
	num := func(k string) int { return int(p[k].GetIntegerValue()) }

	var tags []string
	for _, v := range p[fieldTags].GetListValue().GetValues() {
		tags = append(tags, v.GetStringValue())
	}

	c := &domain.Chunk{
		ID:            str(fieldChunkID),
		OwnerID:       str(fieldOwnerID),
		FileID:        str(fieldFileID),
		Content:       str(fieldContent),
		ChunkIndex:    num(fieldChunkIndex),
		StartPosition: num(fieldStartPosition),
		EndPosition:   num(fieldEndPosition),
		TokenCount:    num(fieldTokenCount),
		Metadata: domain.ChunkMetadata{
			FileName:       str(fieldFileName),
			MimeType:       str(fieldMimeType),
			Source:         str(fieldSource),
			Title:          str(fieldTitle),
			Tags:           tags,
			EmbeddingModel: str(fieldEmbeddingModel),
			Generation:     str(fieldGeneration),
		},
	}
	if ms := p[fieldCreatedAt].GetIntegerValue(); ms > 0 {
		c.CreatedAt = time.UnixMilli(ms)
	}
	return c
}
