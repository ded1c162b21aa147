package search

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
)

// AccessScope は呼び出し元の可視範囲を表します
// レコードが可視になるのは以下のいずれか:
//   - record.user_id が呼び出し元ユーザーに一致
//   - record.team_id が呼び出し元の所属チームに含まれる
//   - source_type が全体公開種別（business_directory）
type AccessScope struct {
	UserID  uuid.UUID
	TeamIDs []uuid.UUID
}

// Filters は候補生成前に適用される構造的フィルタです
// 日付・金額の範囲は receipt / claim 以外の種別ではno-opになる
type Filters struct {
	SourceTypes  []models.SourceType
	ContentTypes []models.ContentType
	Language     *string
	DateFrom     *time.Time
	DateTo       *time.Time
	AmountMin    *float64
	AmountMax    *float64
}

// Weights はブランチごとのスコア重みです
type Weights struct {
	Semantic float64
	Trigram  float64
	Keyword  float64
}

// DefaultWeights はベクトル+テキスト検索のデフォルト重み
var DefaultWeights = Weights{Semantic: 0.6, Trigram: 0.15, Keyword: 0.25}

// TextOnlyWeights はテキストのみ検索のデフォルト重み
var TextOnlyWeights = Weights{Semantic: 0.4, Trigram: 0.3, Keyword: 0.3}

const (
	// DefaultSimilarityThreshold はセマンティックブランチの許容下限
	DefaultSimilarityThreshold = 0.2
	// DefaultTrigramThreshold はトライグラムブランチの許容下限
	DefaultTrigramThreshold = 0.3
	// KeywordRankEpsilon はキーワードブランチの最小許容ランク
	KeywordRankEpsilon = 0.01
	// DefaultMatchCount は結果件数の上限デフォルト
	DefaultMatchCount = 20
)

// Candidate は1ブランチが生成した候補レコードです
// Scoreは生成元ブランチの素点（ブランチ閾値を超えたものだけが返る）
type Candidate struct {
	ID          uuid.UUID
	SourceType  models.SourceType
	SourceID    uuid.UUID
	ContentType models.ContentType
	ContentText string
	UserID      *uuid.UUID
	TeamID      *uuid.UUID
	Language    string
	Score       float64
}

// Result はブランチ融合後の最終検索結果1件です
type Result struct {
	ID            uuid.UUID          `json:"id"`
	SourceType    models.SourceType  `json:"sourceType"`
	SourceID      uuid.UUID          `json:"sourceID"`
	ContentType   models.ContentType `json:"contentType"`
	ContentText   string             `json:"contentText"`
	SemanticScore float64            `json:"semanticScore"`
	TrigramScore  float64            `json:"trigramScore"`
	KeywordScore  float64            `json:"keywordScore"`
	CombinedScore float64            `json:"combinedScore"`
}

// MerchantSuggestion はマーチャント曖昧検索の集約結果1件です
type MerchantSuggestion struct {
	Merchant    string  `json:"merchant"`
	Matches     int     `json:"matches"`
	TotalAmount float64 `json:"totalAmount"`
	Similarity  float64 `json:"similarity"`
}

// HybridSearchParams はハイブリッド検索の入力です
// QueryVector / QueryText の欠けたブランチは失敗ではなく無効化される
type HybridSearchParams struct {
	QueryVector []float32
	QueryText   string
	Scope       AccessScope
	Filters     Filters

	// 0値はデフォルトにフォールバックする
	SimilarityThreshold float64
	TrigramThreshold    float64
	MatchCount          int
	Weights             *Weights
}
