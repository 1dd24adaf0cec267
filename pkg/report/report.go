package report

import (
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/feed-collector/pkg/storage"
)

// Artifacts 一次运行生成的报表文件路径
type Artifacts struct {
	Plot  string
	Table string
}

// ReportError 报表生成失败
type ReportError struct {
	Table string
	Err   error
}

func (e *ReportError) Error() string { return fmt.Sprintf("report %s: %v", e.Table, e.Err) }

func (e *ReportError) Unwrap() error { return e.Err }

// Querier 报表只需要只读查询
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*storage.Rows, error)
}

// Generator 读取采集器表的最近 N 行，生成折线图（PNG）和明细表（HTML）
type Generator struct {
	store  Querier
	outDir string
	rows   int
	logger *zap.Logger
}

func NewGenerator(store Querier, outDir string, rows int, logger *zap.Logger) *Generator {
	if rows <= 0 {
		rows = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: store, outDir: outDir, rows: rows, logger: logger}
}

// Generate 输出 <outDir>/<table>_plot.png 与 <outDir>/<table>_table.html
func (g *Generator) Generate(ctx context.Context, table string) (Artifacts, error) {
	if !storage.ValidIdentifier(table) {
		return Artifacts{}, &ReportError{Table: table, Err: fmt.Errorf("invalid table name")}
	}
	if err := os.MkdirAll(g.outDir, 0755); err != nil {
		return Artifacts{}, &ReportError{Table: table, Err: err}
	}

	// 最新在前
	rows, err := g.store.Query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id DESC LIMIT ?", table), g.rows)
	if err != nil {
		return Artifacts{}, &ReportError{Table: table, Err: err}
	}
	if len(rows.Values) == 0 {
		return Artifacts{}, &ReportError{Table: table, Err: fmt.Errorf("no rows")}
	}

	out := Artifacts{
		Plot:  filepath.Join(g.outDir, table+"_plot.png"),
		Table: filepath.Join(g.outDir, table+"_table.html"),
	}
	if err := writePlot(rows, table, out.Plot); err != nil {
		return Artifacts{}, &ReportError{Table: table, Err: err}
	}
	if err := writeTable(rows, table, g.rows, out.Table); err != nil {
		return Artifacts{}, &ReportError{Table: table, Err: err}
	}
	g.logger.Info("report generated", zap.String("table", table),
		zap.String("plot", out.Plot), zap.String("html", out.Table), zap.Int("rows", len(rows.Values)))
	return out, nil
}

// rowTime 优先取 timestamp，其次 date
func rowTime(cols []string, row []any) (time.Time, bool) {
	var date string
	for i, c := range cols {
		s, ok := row[i].(string)
		if !ok {
			continue
		}
		switch c {
		case "timestamp":
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t, true
			}
		case "date":
			date = s
		}
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(x, ",", ""), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// numericColumns 除 id/date/timestamp 外，所有非空值都能转成数字的列
func numericColumns(rows *storage.Rows) []int {
	var idx []int
	for i, c := range rows.Columns {
		if c == "id" || c == "date" || c == "timestamp" {
			continue
		}
		numeric, seen := true, false
		for _, r := range rows.Values {
			if r[i] == nil {
				continue
			}
			if _, ok := toFloat(r[i]); !ok {
				numeric = false
				break
			}
			seen = true
		}
		if numeric && seen {
			idx = append(idx, i)
		}
	}
	return idx
}

func writePlot(rows *storage.Rows, table, path string) error {
	cols := numericColumns(rows)
	if len(cols) == 0 {
		return fmt.Errorf("no numeric columns to plot")
	}

	p := plot.New()
	p.Title.Text = table
	p.X.Label.Text = "Date"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	plotted := 0
	for n, ci := range cols {
		var xys plotter.XYs
		// 查询结果最新在前，画图按时间正序
		for i := len(rows.Values) - 1; i >= 0; i-- {
			r := rows.Values[i]
			t, ok := rowTime(rows.Columns, r)
			if !ok {
				continue
			}
			y, ok := toFloat(r[ci])
			if !ok {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(t.Unix()), Y: y})
		}
		if len(xys) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(n)
		points.Color = plotutil.Color(n)
		points.Shape = plotutil.Shape(n)
		p.Add(line, points)
		p.Legend.Add(rows.Columns[ci], line, points)
		plotted++
	}
	if plotted == 0 {
		return fmt.Errorf("no rows with a parseable date")
	}
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(14*vg.Inch, 7*vg.Inch, path)
}

var tableTmpl = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
table { width: 100%; border-collapse: collapse; font-family: Arial, sans-serif; }
th, td { border: 1px solid #dddddd; text-align: center; padding: 8px; }
th { background-color: #f2f2f2; }
tr:nth-child(even) { background-color: #fafafa; }
</style>
</head>
<body>
<h2>{{.Title}}</h2>
<table>
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

func writeTable(rows *storage.Rows, table string, limit int, path string) error {
	data := struct {
		Title   string
		Columns []string
		Rows    [][]string
	}{
		Title:   fmt.Sprintf("%s: latest %d rows", table, limit),
		Columns: rows.Columns,
	}
	for _, r := range rows.Values {
		cells := make([]string, len(r))
		for i, v := range r {
			if v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		data.Rows = append(data.Rows, cells)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tableTmpl.Execute(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
