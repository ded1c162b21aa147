package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jinford/receipt-search/pkg/models"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// MaintenanceHealthAction は種別ごとのコンテンツカバレッジを表示するコマンドのアクション
func MaintenanceHealthAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	rows, err := appCtx.Container.MaintenanceService.AnalyzeContentHealth(ctx)
	if err != nil {
		return fmt.Errorf("カバレッジ診断に失敗: %w", err)
	}

	if len(rows) == 0 {
		fmt.Println("Embeddingレコードはありません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Source Type", "Content Type", "Total", "Empty", "Coverage")
	for _, row := range rows {
		table.Append(
			string(row.SourceType),
			string(row.ContentType),
			fmt.Sprintf("%d", row.Total),
			fmt.Sprintf("%d", row.Empty),
			fmt.Sprintf("%.1f%%", row.CoveragePct),
		)
	}
	table.Render()
	return nil
}

// MaintenanceRepairAction は不正コンテンツを修復するコマンドのアクション
func MaintenanceRepairAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	summary, err := appCtx.Container.MaintenanceService.RepairMalformedContent(ctx)
	if err != nil {
		return fmt.Errorf("修復バッチの実行に失敗: %w", err)
	}

	fmt.Printf("修復完了: fixed=%d skipped=%d errors=%d\n", summary.Fixed, summary.Skipped, summary.Errors)

	if len(summary.Outcomes) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Record", "Source", "Content Type", "Status", "Message")
		for _, o := range summary.Outcomes {
			table.Append(
				o.RecordID.String(),
				fmt.Sprintf("%s/%s", o.SourceType, o.SourceID),
				string(o.ContentType),
				string(o.Status),
				o.Message,
			)
		}
		table.Render()
	}
	return nil
}

// MaintenanceMissingAction はEmbedding未生成のソースレコードを表示するコマンドのアクション
// --enqueue を指定すると検出したレコードをバックフィルとしてキューに積む
func MaintenanceMissingAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	limit := cmd.Int("limit")
	enqueue := cmd.Bool("enqueue")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	missing, err := appCtx.Container.MaintenanceService.FindMissingEmbeddings(ctx, limit)
	if err != nil {
		return fmt.Errorf("未生成レコードの検出に失敗: %w", err)
	}

	if len(missing) == 0 {
		fmt.Println("Embedding未生成のレコードはありません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Source", "Candidate Text", "Updated At")
	for _, m := range missing {
		text := m.CandidateText
		if len(text) > 48 {
			text = text[:48] + "..."
		}
		table.Append(
			fmt.Sprintf("%s/%s", m.SourceType, m.SourceID),
			text,
			m.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()

	if !enqueue {
		return nil
	}

	enqueued := 0
	for _, m := range missing {
		if _, err := appCtx.Container.QueueService.Enqueue(ctx, m.SourceType, m.SourceID, models.OperationInsert,
			map[string]any{"enqueuedBy": "backfill"}); err != nil {
			return fmt.Errorf("バックフィルタスクの投入に失敗 (%s/%s): %w", m.SourceType, m.SourceID, err)
		}
		enqueued++
	}
	fmt.Printf("バックフィルタスクを%d件投入しました\n", enqueued)
	return nil
}

// MaintenanceStatsAction は管理者向けの検索基盤統計を表示するコマンドのアクション
func MaintenanceStatsAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	callerID, err := uuid.Parse(cmd.String("user-id"))
	if err != nil {
		return fmt.Errorf("不正なユーザーID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	stats, err := appCtx.Container.MaintenanceService.SearchStats(ctx, callerID)
	if err != nil {
		return fmt.Errorf("統計の取得に失敗: %w", err)
	}

	fmt.Printf("\n=== 検索基盤統計 ===\n\n")
	fmt.Printf("総レコード数:         %d\n", stats.TotalRecords)
	fmt.Printf("平均コンテンツ長:     %.1f\n", stats.AvgContentLength)

	if len(stats.BySourceType) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Source Type", "Count")
		for sourceType, count := range stats.BySourceType {
			table.Append(string(sourceType), fmt.Sprintf("%d", count))
		}
		table.Render()
	}

	if len(stats.ByLanguage) > 0 {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Language", "Count")
		for language, count := range stats.ByLanguage {
			table.Append(language, fmt.Sprintf("%d", count))
		}
		table.Render()
	}
	return nil
}
