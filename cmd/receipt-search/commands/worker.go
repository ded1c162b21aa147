package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

// WorkerStartAction はEmbedding生成ワーカーを起動するコマンドのアクション
// シグナルによるコンテキストキャンセルで停止する
func WorkerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Worker.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("ワーカーの実行に失敗: %w", err)
	}
	return nil
}
