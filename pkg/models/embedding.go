package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceType はEmbedding元となるレコードの種別を表します
type SourceType string

const (
	SourceTypeReceipt           SourceType = "receipt"
	SourceTypeClaim             SourceType = "claim"
	SourceTypeTeamMember        SourceType = "team_member"
	SourceTypeCustomCategory    SourceType = "custom_category"
	SourceTypeBusinessDirectory SourceType = "business_directory"
)

// IsPubliclyVisible はオーナーに関係なく全ユーザーに公開される種別かどうかを返します
func (s SourceType) IsPubliclyVisible() bool {
	return s == SourceTypeBusinessDirectory
}

// HasMonetaryFilters は日付・金額フィルタの対象となる種別かどうかを返します
// （receipt / claim 以外では日付・金額フィルタはno-opになる）
func (s SourceType) HasMonetaryFilters() bool {
	return s == SourceTypeReceipt || s == SourceTypeClaim
}

// ContentType は同一ソース内のセマンティックなサブカテゴリを表します
type ContentType string

const (
	ContentTypeFullText ContentType = "full_text"
	ContentTypeMerchant ContentType = "merchant"
	ContentTypeNotes    ContentType = "notes"
	ContentTypeLineItem ContentType = "line_item"
	ContentTypeFallback ContentType = "fallback"
)

// EmbeddingDimension はEmbeddingベクトルの固定次元数
const EmbeddingDimension = 1536

// DefaultLanguage は言語未指定時のデフォルトISOコード
const DefaultLanguage = "en"

// EmbeddingMetadata はEmbeddingレコードに付随する型付きメタデータです
// 金額・日付はフィルタ用に非正規化して保持する。定義済みフィールドに
// 収まらない値のみ Extra に残す（緩いJSONマップへの退行を避けるため）
type EmbeddingMetadata struct {
	Amount       *float64       `json:"amount,omitempty"`
	Currency     *string        `json:"currency,omitempty"`
	Date         *time.Time     `json:"date,omitempty"`
	MigratedFrom *string        `json:"migratedFrom,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// EmbeddingRecord は検索対象コンテンツのシステムオブレコードの1行を表します
// (SourceType, SourceID, ContentType) が自然キーで、同一キーへの書き込みは
// 上書き（upsert）になる
type EmbeddingRecord struct {
	ID          uuid.UUID         `json:"id"`
	SourceType  SourceType        `json:"sourceType"`
	SourceID    uuid.UUID         `json:"sourceID"`
	ContentType ContentType       `json:"contentType"`
	ContentText string            `json:"contentText"`
	Embedding   []float32         `json:"embedding"`
	Metadata    EmbeddingMetadata `json:"metadata"`
	UserID      *uuid.UUID        `json:"userID,omitempty"`
	TeamID      *uuid.UUID        `json:"teamID,omitempty"` // nilは個人所有
	Language    string            `json:"language"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}
