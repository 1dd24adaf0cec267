package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
)

// PlotContentID 正文中引用内嵌图片的 cid
const PlotContentID = "listing_deal_plot"

// Message 发给单个接收人的通知
type Message struct {
	To        string
	Subject   string
	Body      string // HTML 片段：记录的键值表
	PlotPath  string // 可选，内嵌图片
	TablePath string // 可选，附在正文后的 HTML 明细表
}

func Subject(collector string) string {
	return "Data Notification: " + collector
}

type kv struct {
	Key   string
	Value string
}

var recordTmpl = template.Must(template.New("record").Parse(`<h2>Here is the latest data:</h2>
<table border="1" cellspacing="0" cellpadding="5" style="border-collapse: collapse; width: 100%; text-align: left;">
<thead><tr style="background-color: #f2f2f2;"><th style="padding: 8px;">Key</th><th style="padding: 8px;">Value</th></tr></thead>
<tbody>
{{range .}}<tr><td style="padding: 8px;">{{.Key}}</td><td style="padding: 8px;">{{.Value}}</td></tr>
{{end}}</tbody>
</table>
`))

// RenderRecord 记录按键名排序渲染为键值表
func RenderRecord(rec map[string]any) (string, error) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]kv, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, kv{Key: k, Value: fmt.Sprint(rec[k])})
	}
	var buf bytes.Buffer
	if err := recordTmpl.Execute(&buf, rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var emailTmpl = template.Must(template.New("email").Parse(`<html>
<body>
{{.Body}}
{{if .Plot}}<img src="cid:listing_deal_plot" alt="plot" style="width:100%;height:auto;">{{end}}
{{.Table}}
</body>
</html>
`))

// compose 拼装最终邮件正文；Body 与 Table 都是已渲染的可信 HTML
func compose(body, table string, withPlot bool) (string, error) {
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, struct {
		Body  template.HTML
		Table template.HTML
		Plot  bool
	}{template.HTML(body), template.HTML(table), withPlot})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
