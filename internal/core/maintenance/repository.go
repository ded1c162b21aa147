package maintenance

import (
	"context"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// Repository はEmbeddingストアの保守系データアクセスを抽象化するインターフェース
type Repository interface {
	// ContentHealth は (source_type, content_type) ごとの空/非空件数を集計する
	ContentHealth(ctx context.Context) ([]*ContentHealthRow, error)

	// ListMalformed は不正コンテンツのレコードを検出して返す
	ListMalformed(ctx context.Context, limit int) ([]*MalformedRecord, error)

	// RewriteContent は1レコードの content_text を正とされる値で書き換える
	// provenance は metadata に修復来歴として残る
	RewriteContent(ctx context.Context, id uuid.UUID, content string, provenance string) error

	// Stats は検索基盤全体の統計を集計する
	Stats(ctx context.Context) (*SearchStats, error)
}

// SourceContentReader はソーステーブル（外部コラボレーター）から
// 正とされるフィールド値を読み出すインターフェース
type SourceContentReader interface {
	// AuthoritativeContent は指定レコードの正しいコンテンツを返す
	// ソース行が存在しない、またはフィールドが空の場合は found=false
	AuthoritativeContent(ctx context.Context, sourceType models.SourceType, sourceID uuid.UUID, contentType models.ContentType) (content string, found bool, err error)

	// ListMissingEmbeddings は候補テキストを持つのにEmbedding未生成の
	// ソースレコードを更新時刻の新しい順に返す
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*MissingSource, error)
}

// Authorizer はロール確認（has_role相当）のインターフェース
type Authorizer interface {
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)
}
