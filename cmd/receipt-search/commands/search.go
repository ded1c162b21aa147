package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/internal/core/search"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// SearchQueryAction はハイブリッド検索を実行するコマンドのアクション
// クエリテキストをEmbeddingしてセマンティック・トライグラム・キーワードの
// 3ブランチで検索し、融合済みの結果を表示する
func SearchQueryAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	textOnly := cmd.Bool("text-only")
	limit := cmd.Int("limit")

	scope, err := parseScope(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	params := search.HybridSearchParams{
		QueryText:           query,
		Scope:               scope,
		SimilarityThreshold: appCtx.Config.Search.SimilarityThreshold,
		TrigramThreshold:    appCtx.Config.Search.TrigramThreshold,
		MatchCount:          limit,
	}

	var results []*search.Result
	if textOnly {
		results, err = appCtx.Container.SearchService.TextSearch(ctx, params)
	} else {
		params.QueryVector, err = appCtx.Container.Embedder.Embed(ctx, query)
		if err != nil {
			return fmt.Errorf("クエリのEmbedding生成に失敗: %w", err)
		}
		results, err = appCtx.Container.SearchService.HybridSearch(ctx, params)
	}
	if err != nil {
		return fmt.Errorf("検索の実行に失敗: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("検索結果はありません")
		return nil
	}

	renderResultsTable(results)
	return nil
}

// SearchMerchantsAction はマーチャント名の曖昧検索を実行するコマンドのアクション
func SearchMerchantsAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	query := cmd.String("query")
	limit := cmd.Int("limit")

	scope, err := parseScope(cmd)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	suggestions, err := appCtx.Container.SearchService.FuzzyMerchantSearch(ctx, query,
		appCtx.Config.Search.TrigramThreshold, limit, scope)
	if err != nil {
		return fmt.Errorf("マーチャント検索の実行に失敗: %w", err)
	}

	if len(suggestions) == 0 {
		fmt.Println("候補はありません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Merchant", "Matches", "Total Amount", "Similarity")
	for _, s := range suggestions {
		table.Append(s.Merchant,
			fmt.Sprintf("%d", s.Matches),
			fmt.Sprintf("%.2f", s.TotalAmount),
			fmt.Sprintf("%.3f", s.Similarity),
		)
	}
	table.Render()
	return nil
}

// parseScope は --user-id / --team-ids フラグからアクセススコープを組み立てる
func parseScope(cmd *cli.Command) (search.AccessScope, error) {
	userID, err := uuid.Parse(cmd.String("user-id"))
	if err != nil {
		return search.AccessScope{}, fmt.Errorf("不正なユーザーID: %w", err)
	}

	scope := search.AccessScope{UserID: userID}
	if teamIDs := cmd.String("team-ids"); teamIDs != "" {
		for _, raw := range strings.Split(teamIDs, ",") {
			teamID, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				return search.AccessScope{}, fmt.Errorf("不正なチームID (%s): %w", raw, err)
			}
			scope.TeamIDs = append(scope.TeamIDs, teamID)
		}
	}
	return scope, nil
}

// renderResultsTable はテーブル形式で検索結果を表示します
func renderResultsTable(results []*search.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Source", "Type", "Content", "Semantic", "Trigram", "Keyword", "Combined")

	for _, r := range results {
		content := r.ContentText
		if len(content) > 60 {
			content = content[:60] + "..."
		}
		table.Append(
			fmt.Sprintf("%s/%s", r.SourceType, r.SourceID),
			string(r.ContentType),
			content,
			fmt.Sprintf("%.3f", r.SemanticScore),
			fmt.Sprintf("%.3f", r.TrigramScore),
			fmt.Sprintf("%.3f", r.KeywordScore),
			fmt.Sprintf("%.3f", r.CombinedScore),
		)
	}

	table.Render()
}
