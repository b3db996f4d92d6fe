package layout

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// debugDoc 在结果之外附带折行前后的对照，方便排查折行漂移。
type debugDoc struct {
	*Result
	LineCount int      `json:"lineCount"`
	Texts     []string `json:"texts"`
}

// EncodeDebug 将排版结果以缩进 JSON 写入 w。
func EncodeDebug(w io.Writer, res *Result) error {
	if res == nil {
		return nil
	}
	doc := debugDoc{Result: res, LineCount: len(res.Lines)}
	for _, ln := range res.Lines {
		doc.Texts = append(doc.Texts, ln.Text)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteDebugJSON 将排版结果输出到 path，便于调试或可视化。
func WriteDebugJSON(res *Result, path string) error {
	if res == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建调试文件 %s 失败: %w", path, err)
	}
	if err := EncodeDebug(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
