package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/hdmi-matrix/internal/journal"
)

// CommandLogRepo 命令日志表 matrix_cmd_log，实现 journal.Sink
type CommandLogRepo struct {
	Pool *pgxpool.Pool
	// WriteTimeout 单次写入上限，避免数据库抖动拖慢命令返回
	WriteTimeout time.Duration
}

// Write 插入一条命令日志
func (r *CommandLogRepo) Write(ctx context.Context, e journal.Entry) error {
	timeout := r.WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	const q = `INSERT INTO matrix_cmd_log (id, request_id, op, args, outcome, error_kind, error, request, response, latency_ms, created_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.Pool.Exec(ctx, q,
		e.ID, nullable(e.RequestID), e.Op, e.Args, e.Outcome,
		nullable(e.ErrorKind), nullable(e.Error), nullable(e.Request), nullable(e.Response),
		float64(e.Latency)/float64(time.Millisecond), e.At)
	return err
}

// Recent 按时间倒序查询最近的命令日志，op 为空表示不过滤
func (r *CommandLogRepo) Recent(ctx context.Context, op string, limit int) ([]journal.Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	const q = `SELECT id, COALESCE(request_id,''), op, args, outcome, COALESCE(error_kind,''), COALESCE(error,''),
                      COALESCE(request,''), COALESCE(response,''), latency_ms, created_at
               FROM matrix_cmd_log
               WHERE ($1 = '' OR op = $1)
               ORDER BY created_at DESC
               LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, op, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e         journal.Entry
			latencyMS float64
		)
		err := row.Scan(&e.ID, &e.RequestID, &e.Op, &e.Args, &e.Outcome, &e.ErrorKind, &e.Error,
			&e.Request, &e.Response, &latencyMS, &e.At)
		e.Latency = time.Duration(latencyMS * float64(time.Millisecond))
		return e, err
	})
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
