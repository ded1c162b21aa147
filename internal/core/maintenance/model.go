package maintenance

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// ContentHealthRow は (source_type, content_type) ごとのカバレッジ診断です
type ContentHealthRow struct {
	SourceType  models.SourceType  `json:"sourceType"`
	ContentType models.ContentType `json:"contentType"`
	Total       int                `json:"total"`
	Empty       int                `json:"empty"`
	Populated   int                `json:"populated"`
	CoveragePct float64            `json:"coveragePct"`
}

// MalformedReason は不正コンテンツの検出理由です
type MalformedReason string

const (
	// ReasonEmptyContent は content_text が空のレコード
	ReasonEmptyContent MalformedReason = "empty_content"
	// ReasonMerchantCopied は line_item のコンテンツが明細の説明ではなく
	// 親レシートのマーチャント名になっているレコード
	ReasonMerchantCopied MalformedReason = "merchant_copied"
)

// MalformedRecord は修復対象として検出されたEmbeddingレコードです
type MalformedRecord struct {
	ID          uuid.UUID          `json:"id"`
	SourceType  models.SourceType  `json:"sourceType"`
	SourceID    uuid.UUID          `json:"sourceID"`
	ContentType models.ContentType `json:"contentType"`
	ContentText string             `json:"contentText"`
	Reason      MalformedReason    `json:"reason"`
}

// RepairStatus は修復バッチにおける1レコードの結果種別です
type RepairStatus string

const (
	RepairFixed         RepairStatus = "fixed"
	RepairSkippedNoData RepairStatus = "skipped_no_data"
	RepairError         RepairStatus = "error"
)

// RepairOutcome は修復バッチの1レコード分の結果です
type RepairOutcome struct {
	RecordID    uuid.UUID          `json:"recordID"`
	SourceType  models.SourceType  `json:"sourceType"`
	SourceID    uuid.UUID          `json:"sourceID"`
	ContentType models.ContentType `json:"contentType"`
	Status      RepairStatus       `json:"status"`
	Message     string             `json:"message,omitempty"`
}

// RepairSummary は修復バッチ全体の集計です
type RepairSummary struct {
	Outcomes []RepairOutcome `json:"outcomes"`
	Fixed    int             `json:"fixed"`
	Skipped  int             `json:"skipped"`
	Errors   int             `json:"errors"`
}

// MissingSource はEmbedding未生成のソースレコードです
type MissingSource struct {
	SourceType    models.SourceType `json:"sourceType"`
	SourceID      uuid.UUID         `json:"sourceID"`
	CandidateText string            `json:"candidateText"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// SearchStats は管理者向けの検索基盤統計です
type SearchStats struct {
	TotalRecords     int                       `json:"totalRecords"`
	BySourceType     map[models.SourceType]int `json:"bySourceType"`
	ByLanguage       map[string]int            `json:"byLanguage"`
	AvgContentLength float64                   `json:"avgContentLength"`
}
