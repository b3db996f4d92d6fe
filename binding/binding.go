package binding

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ${path.to.value} 或 ${path.to.value|默认值}；$${...} 输出字面量 ${...}。
var exprPattern = regexp.MustCompile(`\$?\$\{([^}|]+)(?:\|([^}]*))?\}`)

// Interpolate 将文本中的 ${path.to.value} 替换为 data 中的值。
// 路径不存在时使用 | 之后的默认值；没有默认值则保留原占位符。
func Interpolate(text string, data any) string {
	out, _ := expand(text, data, false)
	return out
}

// Expand 与 Interpolate 相同，但任一路径无法解析且没有默认值时返回错误，
// 用于配置文件等不允许残留占位符的场景。
func Expand(text string, data any) (string, error) {
	return expand(text, data, true)
}

func expand(text string, data any, strict bool) (string, error) {
	var missing []string
	out := exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		if strings.HasPrefix(match, "$$") {
			return match[1:]
		}
		groups := exprPattern.FindStringSubmatch(match)
		path := strings.TrimSpace(groups[1])
		hasDefault := strings.Contains(match, "|")
		if val, ok := Resolve(data, path); ok && val != nil {
			return fmt.Sprint(val)
		}
		if hasDefault {
			return groups[2]
		}
		missing = append(missing, path)
		return match
	})
	if strict && len(missing) > 0 {
		return out, fmt.Errorf("无法解析占位符: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Env 返回形如 {"env": {"HOME": "..."}} 的数据，供 ${env.NAME} 引用环境变量。
func Env() map[string]any {
	vars := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return map[string]any{"env": vars}
}

// Resolve 按点号路径取值，支持 map 下标与 name[0] 形式的数组下标。
func Resolve(data any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	current := data
	for _, segment := range strings.Split(path, ".") {
		name, indexes, ok := parseSegment(segment)
		if !ok {
			return nil, false
		}
		if name != "" {
			if current, ok = descendMap(current, name); !ok {
				return nil, false
			}
		}
		for _, idx := range indexes {
			if current, ok = descendArray(current, idx); !ok {
				return nil, false
			}
		}
	}
	return current, true
}

func parseSegment(segment string) (string, []int, bool) {
	name, rest, found := strings.Cut(segment, "[")
	if !found {
		return segment, nil, true
	}
	rest = "[" + rest
	var indexes []int
	for rest != "" {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end == -1 {
			return "", nil, false
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, false
		}
		indexes = append(indexes, idx)
		rest = rest[end+1:]
	}
	return name, indexes, true
}

func descendMap(current any, key string) (any, bool) {
	switch c := current.(type) {
	case map[string]any:
		val, ok := c[key]
		return val, ok
	case map[string]string:
		val, ok := c[key]
		return val, ok
	default:
		return nil, false
	}
}

func descendArray(current any, idx int) (any, bool) {
	switch c := current.(type) {
	case []any:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	case []string:
		if idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}
