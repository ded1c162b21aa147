package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/receipt-search/cmd/receipt-search/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "receipt-search",
		Usage: "レシート管理向けハイブリッド検索基盤（Embeddingストア・キュー・ワーカー）",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "検索スキーマを適用",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.BoolFlag{
						Name:  "with-source-tables",
						Usage: "ソーステーブルの参照スキーマも適用（開発・テスト用）",
					},
					&cli.BoolFlag{
						Name:  "attach-triggers",
						Usage: "監視対象テーブルにキュートリガーを張る",
					},
				},
				Action: commands.MigrateAction,
			},
			{
				Name:  "worker",
				Usage: "Embedding生成ワーカー管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "ワーカーを起動（SIGINT/SIGTERMで停止）",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.WorkerStartAction,
					},
				},
			},
			{
				Name:  "queue",
				Usage: "Embeddingキュー管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "stats",
						Usage: "状態別・優先度別の件数を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.QueueStatsAction,
					},
					{
						Name:  "dead",
						Usage: "再試行上限に達した失敗タスクを表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数の上限",
								Value: 50,
							},
						},
						Action: commands.QueueDeadAction,
					},
					{
						Name:  "retry",
						Usage: "失敗タスクを再投入",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "task-id",
								Usage:    "タスクID",
								Required: true,
							},
						},
						Action: commands.QueueRetryAction,
					},
					{
						Name:  "enqueue",
						Usage: "タスクを手動投入（バックフィル・再インデックス用）",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "source-type",
								Usage:    "ソース種別 (receipt/claim/team_member/custom_category/business_directory)",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "source-id",
								Usage:    "ソースレコードID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "operation",
								Usage: "操作種別 (insert/update/delete)",
								Value: "insert",
							},
						},
						Action: commands.QueueEnqueueAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "検索コマンド",
				Commands: []*cli.Command{
					{
						Name:  "query",
						Usage: "ハイブリッド検索を実行",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "user-id",
								Usage:    "呼び出し元ユーザーID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "team-ids",
								Usage: "所属チームID（カンマ区切り）",
							},
							&cli.BoolFlag{
								Name:  "text-only",
								Usage: "Embeddingを生成せずテキストブランチのみで検索",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "結果件数の上限",
								Value: 20,
							},
						},
						Action: commands.SearchQueryAction,
					},
					{
						Name:  "merchants",
						Usage: "マーチャント名の曖昧検索",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "query",
								Usage:    "マーチャント名（部分一致・表記ゆれ可）",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "user-id",
								Usage:    "呼び出し元ユーザーID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "team-ids",
								Usage: "所属チームID（カンマ区切り）",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "候補件数の上限",
								Value: 10,
							},
						},
						Action: commands.SearchMerchantsAction,
					},
				},
			},
			{
				Name:  "maintenance",
				Usage: "Embeddingストア保守コマンド",
				Commands: []*cli.Command{
					{
						Name:  "health",
						Usage: "種別ごとのコンテンツカバレッジを診断",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.MaintenanceHealthAction,
					},
					{
						Name:  "repair",
						Usage: "不正コンテンツをソーステーブルの値で修復",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.MaintenanceRepairAction,
					},
					{
						Name:  "missing",
						Usage: "Embedding未生成のソースレコードを表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数の上限",
								Value: 100,
							},
							&cli.BoolFlag{
								Name:  "enqueue",
								Usage: "検出したレコードをバックフィルとしてキューに積む",
							},
						},
						Action: commands.MaintenanceMissingAction,
					},
					{
						Name:  "stats",
						Usage: "検索基盤統計を表示（adminロールが必要）",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "user-id",
								Usage:    "呼び出し元ユーザーID",
								Required: true,
							},
						},
						Action: commands.MaintenanceStatsAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
