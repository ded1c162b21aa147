package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// ContentPiece はソースレコードから切り出したEmbedding対象スニペット1件です
// Text には必ずそのContentTypeに対応する実際のフィールド値が入る
// （line_item の Text は明細の説明であり、親のマーチャント名ではない）
type ContentPiece struct {
	ContentType models.ContentType
	Text        string
	Metadata    models.EmbeddingMetadata
	UserID      *uuid.UUID
	TeamID      *uuid.UUID
	Language    string

	// SourceID はこのピース固有のソースID（uuid.Nilならタスクの
	// SourceIDを使う）。明細行のように親とは別の行を指すピースが
	// 自然キー衝突を起こさないための上書き
	SourceID uuid.UUID
}

// ContentProvider はソーステーブルからEmbedding対象コンテンツを組み立てる
// インターフェース。コンテンツが1件も作れないソースに対しては
// fallback 種別のピースを返すか、空スライスを返す
type ContentProvider interface {
	ContentPieces(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID) ([]ContentPiece, error)
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TokenCounter はメトリクス用のトークン数算出インターフェース
type TokenCounter interface {
	Count(text string) int
}
