package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const recipientsTable = `
CREATE TABLE IF NOT EXISTS user_preferences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_name TEXT NOT NULL,
	user_email TEXT NOT NULL UNIQUE
);`

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier 表名/列名只允许字母、数字、下划线，拼接 SQL 前必须校验
func ValidIdentifier(name string) bool { return identRe.MatchString(name) }

// Recipient 通知接收人
type Recipient struct {
	Name  string
	Email string
}

// Rows 查询结果，按列名顺序保存
type Rows struct {
	Columns []string
	Values  [][]any
}

// Gateway 唯一允许直接访问数据库的组件。
// 每次调用单独打开连接，执行一条语句后关闭，不跨调用持有连接。
type Gateway struct {
	path        string
	busyTimeout time.Duration
	logger      *zap.Logger
}

type Option func(*Gateway)

func WithBusyTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.busyTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// IsMemoryPath 判断是否为 SQLite 内存库路径
func IsMemoryPath(path string) bool {
	p := strings.ToLower(strings.TrimSpace(path))
	return p == ":memory:" || strings.HasPrefix(p, "file::memory:") || strings.Contains(p, "mode=memory")
}

// New 创建 Gateway 并确保 user_preferences 表存在
func New(ctx context.Context, path string, opts ...Option) (*Gateway, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &StorageError{Op: "open", Err: errors.New("empty database path")}
	}
	if IsMemoryPath(path) {
		// 每次调用都新开连接，内存库在连接之间不保留任何表
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("in-memory database %q is not supported", path)}
	}
	g := &Gateway{
		path:        path,
		busyTimeout: 5 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(g)
	}
	if err := g.EnsureTable(ctx, recipientsTable); err != nil {
		return nil, err
	}
	return g, nil
}

// Path 数据库文件路径
func (g *Gateway) Path() string { return g.path }

func (g *Gateway) dsn() string {
	sep := "?"
	if strings.Contains(g.path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", g.path, sep, g.busyTimeout.Milliseconds())
}

// withConn 获取连接 -> 执行 -> 释放
func (g *Gateway) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	db, err := sql.Open("sqlite3", g.dsn())
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (g *Gateway) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := g.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// EnsureTable 幂等建表，DDL 需使用 IF NOT EXISTS
func (g *Gateway) EnsureTable(ctx context.Context, ddl string) error {
	if _, err := g.exec(ctx, ddl); err != nil {
		return &StorageError{Op: "ensure_table", Err: err}
	}
	return nil
}

// Upsert 按表的唯一键插入或替换一行
func (g *Gateway) Upsert(ctx context.Context, table string, record map[string]any) error {
	if !identRe.MatchString(table) {
		return &StorageError{Op: "upsert", Table: table, Err: fmt.Errorf("invalid table name %q", table)}
	}
	if len(record) == 0 {
		return &StorageError{Op: "upsert", Table: table, Err: errors.New("empty record")}
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		if !identRe.MatchString(k) {
			return &StorageError{Op: "upsert", Table: table, Err: fmt.Errorf("invalid column name %q", k)}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, len(keys))
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		args[i] = record[k]
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(keys, ", "), strings.Join(placeholders, ", "))

	if _, err := g.exec(ctx, stmt, args...); err != nil {
		return &StorageError{Op: "upsert", Table: table, Err: err}
	}
	g.logger.Debug("row upserted", zap.String("table", table), zap.Int("columns", len(keys)))
	return nil
}

// Query 只读查询，不重试
func (g *Gateway) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	out := &Rows{}
	err := g.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		out.Columns = cols
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, v := range vals {
				if b, ok := v.([]byte); ok {
					vals[i] = string(b)
				}
			}
			out.Values = append(out.Values, vals)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return out, nil
}

// ListRecipients 返回已登记的接收人；没有时返回空切片
func (g *Gateway) ListRecipients(ctx context.Context) ([]Recipient, error) {
	rows, err := g.Query(ctx, "SELECT user_name, user_email FROM user_preferences ORDER BY id")
	if err != nil {
		return nil, err
	}
	out := make([]Recipient, 0, len(rows.Values))
	for _, r := range rows.Values {
		out = append(out, Recipient{Name: fmt.Sprint(r[0]), Email: fmt.Sprint(r[1])})
	}
	return out, nil
}

// AddRecipient 登记接收人，邮箱已存在时忽略。返回是否新增。
func (g *Gateway) AddRecipient(ctx context.Context, name, email string) (bool, error) {
	n, err := g.exec(ctx, "INSERT OR IGNORE INTO user_preferences (user_name, user_email) VALUES (?, ?)", name, email)
	if err != nil {
		return false, &StorageError{Op: "add_recipient", Table: "user_preferences", Err: err}
	}
	return n > 0, nil
}
