package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migrateStatements は検索サブシステムのスキーマ定義（実行順）
var migrateStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,

	`CREATE TABLE IF NOT EXISTS embeddings (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    source_type text NOT NULL,
    source_id uuid NOT NULL,
    content_type text NOT NULL,
    content_text text NOT NULL,
    embedding vector(1536),
    metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
    user_id uuid,
    team_id uuid,
    language text NOT NULL DEFAULT 'en',
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now(),
    CONSTRAINT embeddings_natural_key UNIQUE (source_type, source_id, content_type)
)`,

	// NOT VALID: 既存行を再検証せず、空コンテンツの新規流入だけを塞ぐ
	`ALTER TABLE embeddings DROP CONSTRAINT IF EXISTS embeddings_content_text_not_blank`,
	`ALTER TABLE embeddings ADD CONSTRAINT embeddings_content_text_not_blank
    CHECK (length(btrim(content_text)) > 0) NOT VALID`,

	`CREATE INDEX IF NOT EXISTS embeddings_embedding_idx ON embeddings
    USING hnsw (embedding vector_cosine_ops)`,
	`CREATE INDEX IF NOT EXISTS embeddings_content_trgm_idx ON embeddings
    USING gin (content_text gin_trgm_ops)`,
	`CREATE INDEX IF NOT EXISTS embeddings_content_fts_idx ON embeddings
    USING gin (to_tsvector('english', content_text))`,
	`CREATE INDEX IF NOT EXISTS embeddings_source_idx ON embeddings (source_type, source_id)`,
	`CREATE INDEX IF NOT EXISTS embeddings_user_idx ON embeddings (user_id)`,
	`CREATE INDEX IF NOT EXISTS embeddings_team_idx ON embeddings (team_id)`,

	`CREATE TABLE IF NOT EXISTS embedding_queue (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    source_type text NOT NULL,
    source_id uuid NOT NULL,
    operation text NOT NULL,
    priority text NOT NULL DEFAULT 'medium',
    status text NOT NULL DEFAULT 'pending',
    retry_count int NOT NULL DEFAULT 0,
    max_retries int NOT NULL DEFAULT 3,
    error_message text,
    metadata jsonb,
    locked_by text,
    lease_expires_at timestamptz,
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now(),
    processed_at timestamptz
)`,
	`CREATE INDEX IF NOT EXISTS embedding_queue_pending_idx ON embedding_queue (status, priority, created_at)
    WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS embedding_queue_lease_idx ON embedding_queue (lease_expires_at)
    WHERE status = 'processing'`,
	`CREATE INDEX IF NOT EXISTS embedding_queue_source_idx ON embedding_queue (source_type, source_id)`,

	`CREATE TABLE IF NOT EXISTS embedding_metrics (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id uuid,
    source_type text NOT NULL,
    content_type text NOT NULL DEFAULT '',
    success boolean NOT NULL,
    latency_ms bigint NOT NULL DEFAULT 0,
    tokens int NOT NULL DEFAULT 0,
    error_class text,
    created_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS embedding_metrics_created_idx ON embedding_metrics (created_at)`,

	// トリガー関数はenqueue失敗を握り潰す
	// キュー投入に失敗してもソーステーブルへの書き込みは成功させる
	// （検索の鮮度よりソースデータの保全を優先する）
	`CREATE OR REPLACE FUNCTION enqueue_embedding_task() RETURNS trigger AS $fn$
DECLARE
    v_source_id uuid;
    v_operation text;
    v_priority text;
BEGIN
    BEGIN
        IF TG_OP = 'INSERT' THEN
            v_source_id := NEW.id; v_operation := 'insert'; v_priority := 'high';
        ELSIF TG_OP = 'UPDATE' THEN
            v_source_id := NEW.id; v_operation := 'update'; v_priority := 'medium';
        ELSE
            v_source_id := OLD.id; v_operation := 'delete'; v_priority := 'low';
        END IF;

        INSERT INTO embedding_queue (source_type, source_id, operation, priority, status, metadata)
        VALUES (TG_ARGV[0], v_source_id, v_operation, v_priority, 'pending',
                jsonb_build_object('trigger', TG_NAME, 'table', TG_TABLE_NAME));
    EXCEPTION WHEN OTHERS THEN
        NULL;
    END;

    IF TG_OP = 'DELETE' THEN
        RETURN OLD;
    END IF;
    RETURN NEW;
END;
$fn$ LANGUAGE plpgsql`,
}

// sourceStatements はソーステーブルの参照スキーマ（実行順）
// 本番ではソーステーブルはレシート管理側が所有する。ローカル開発と
// 統合テストのために同じ形のテーブルをここから作成できる
var sourceStatements = []string{
	`CREATE TABLE IF NOT EXISTS receipts (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id uuid NOT NULL,
    team_id uuid,
    merchant text,
    full_text text,
    notes text,
    total numeric(12, 2),
    currency text,
    date timestamptz,
    language text,
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS receipt_line_items (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    receipt_id uuid NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
    description text,
    amount numeric(12, 2),
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS claims (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id uuid NOT NULL,
    team_id uuid,
    title text,
    description text,
    amount numeric(12, 2),
    currency text,
    incurred_at timestamptz,
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
    user_id uuid NOT NULL,
    role text NOT NULL,
    PRIMARY KEY (user_id, role)
)`,
}

// Migrate は検索サブシステムのスキーマを適用する
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range migrateStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// MigrateSourceTables はソーステーブルの参照スキーマを適用する（開発・テスト用）
func MigrateSourceTables(ctx context.Context, db DBTX) error {
	for _, stmt := range sourceStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply source schema: %w", err)
		}
	}
	return nil
}

// AttachQueueTrigger は監視対象テーブルに行トリガーを張る
// 同テーブルのINSERT/UPDATE/DELETEが指定source_typeのタスクとして
// キューに積まれるようになる
func AttachQueueTrigger(ctx context.Context, db DBTX, table string, sourceType string) error {
	trigger := pgx.Identifier{table + "_embedding_queue_trg"}.Sanitize()
	tableIdent := pgx.Identifier{table}.Sanitize()

	if _, err := db.Exec(ctx, fmt.Sprintf(
		`DROP TRIGGER IF EXISTS %s ON %s`, trigger, tableIdent,
	)); err != nil {
		return fmt.Errorf("failed to drop existing trigger: %w", err)
	}

	if _, err := db.Exec(ctx, fmt.Sprintf(
		`CREATE TRIGGER %s
AFTER INSERT OR UPDATE OR DELETE ON %s
FOR EACH ROW EXECUTE FUNCTION enqueue_embedding_task(%s)`,
		trigger, tableIdent, quoteLiteral(sourceType),
	)); err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}
	return nil
}

// quoteLiteral はSQLリテラルとしてクォートする（引用符は二重化）
func quoteLiteral(s string) string {
	out := make([]rune, 0, len(s)+2)
	out = append(out, '\'')
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\'')
		}
		out = append(out, r)
	}
	return string(append(out, '\''))
}
