package commands

import (
	"context"
	"fmt"

	"github.com/jinford/receipt-search/internal/infra/postgres"
	"github.com/jinford/receipt-search/pkg/models"
	"github.com/urfave/cli/v3"
)

// watchedTables はキュートリガーを張る監視対象テーブルとsource_typeの対応
var watchedTables = []struct {
	table      string
	sourceType models.SourceType
}{
	{"receipts", models.SourceTypeReceipt},
	{"receipt_line_items", models.SourceTypeReceipt},
	{"claims", models.SourceTypeClaim},
}

// MigrateAction はスキーマを適用するコマンドのアクション
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	withSourceTables := cmd.Bool("with-source-tables")
	attachTriggers := cmd.Bool("attach-triggers")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	pool := appCtx.Database.Pool

	if withSourceTables {
		if err := postgres.MigrateSourceTables(ctx, pool); err != nil {
			return fmt.Errorf("ソーススキーマの適用に失敗: %w", err)
		}
		fmt.Println("ソーステーブルを適用しました")
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	fmt.Println("検索スキーマを適用しました")

	if attachTriggers {
		for _, w := range watchedTables {
			if err := postgres.AttachQueueTrigger(ctx, pool, w.table, string(w.sourceType)); err != nil {
				return fmt.Errorf("トリガーの作成に失敗 (%s): %w", w.table, err)
			}
			fmt.Printf("キュートリガーを作成しました: %s (%s)\n", w.table, w.sourceType)
		}
	}

	return nil
}
