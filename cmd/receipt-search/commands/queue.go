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

// QueueStatsAction はキューの集計を表示するコマンドのアクション
func QueueStatsAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	stats, err := appCtx.Container.QueueService.Stats(ctx)
	if err != nil {
		return fmt.Errorf("キュー統計の取得に失敗: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Kind", "Key", "Count")

	for _, status := range []models.QueueStatus{models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed} {
		table.Append("status", string(status), fmt.Sprintf("%d", stats.ByStatus[status]))
	}
	for _, priority := range []models.QueuePriority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		table.Append("priority", string(priority), fmt.Sprintf("%d", stats.ByPriority[priority]))
	}
	table.Append("dead", "-", fmt.Sprintf("%d", stats.Dead))

	table.Render()
	return nil
}

// QueueDeadAction は再試行上限に達した失敗タスクを表示するコマンドのアクション
func QueueDeadAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	limit := cmd.Int("limit")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	tasks, err := appCtx.Container.QueueService.ListDead(ctx, limit)
	if err != nil {
		return fmt.Errorf("デッドタスクの取得に失敗: %w", err)
	}

	if len(tasks) == 0 {
		fmt.Println("デッドタスクはありません")
		return nil
	}

	renderTasksTable(tasks)
	return nil
}

// QueueRetryAction は失敗タスクを再投入するコマンドのアクション
func QueueRetryAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	taskIDStr := cmd.String("task-id")

	taskID, err := uuid.Parse(taskIDStr)
	if err != nil {
		return fmt.Errorf("不正なタスクID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	task, err := appCtx.Container.QueueService.Retry(ctx, taskID)
	if err != nil {
		return fmt.Errorf("タスクの再投入に失敗: %w", err)
	}

	fmt.Printf("タスクを再投入しました: %s (%s %s)\n", task.ID, task.SourceType, task.Operation)
	return nil
}

// QueueEnqueueAction はタスクを手動投入するコマンドのアクション
// バックフィルや再インデックスの起点に使う
func QueueEnqueueAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	sourceType := models.SourceType(cmd.String("source-type"))
	operation := models.QueueOperation(cmd.String("operation"))

	sourceID, err := uuid.Parse(cmd.String("source-id"))
	if err != nil {
		return fmt.Errorf("不正なソースID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	task, err := appCtx.Container.QueueService.Enqueue(ctx, sourceType, sourceID, operation,
		map[string]any{"enqueuedBy": "cli"})
	if err != nil {
		return fmt.Errorf("タスクの投入に失敗: %w", err)
	}

	fmt.Printf("タスクを投入しました: %s (priority=%s)\n", task.ID, task.Priority)
	return nil
}

// renderTasksTable はテーブル形式でタスクリストを表示します
func renderTasksTable(tasks []*models.QueueTask) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Source", "Operation", "Priority", "Status", "Retries", "Error")

	for _, task := range tasks {
		errMsg := ""
		if task.ErrorMessage != nil {
			errMsg = *task.ErrorMessage
			if len(errMsg) > 48 {
				errMsg = errMsg[:48] + "..."
			}
		}
		table.Append(
			task.ID.String(),
			fmt.Sprintf("%s/%s", task.SourceType, task.SourceID),
			string(task.Operation),
			string(task.Priority),
			string(task.Status),
			fmt.Sprintf("%d/%d", task.RetryCount, task.MaxRetries),
			errMsg,
		)
	}

	table.Render()
}
