package wizard

import "strings"

// RepairJSON 尝试修复常见的 JSON 格式错误
// 1. 移除 Markdown 代码块标记 (```json ... ```)
// 2. 移除首尾空白字符
func RepairJSON(input string) string {
	cleaned := strings.TrimSpace(input)

	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 2 {
			// 移除第一行 (```json 或 ```)
			lines = lines[1:]
			// 移除最后一行 (```)
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			cleaned = strings.Join(lines, "\n")
		}
	}

	return strings.TrimSpace(cleaned)
}

// ExtractJSON 从自由文本中提取第一个平衡的 JSON 结构（对象或数组）
// 模型偶尔会在 JSON 前后附加说明文字，宽松恢复时按括号配对截取
func ExtractJSON(input string) (string, bool) {
	start := -1
	var open, close rune
	for i, r := range input {
		if r == '{' || r == '[' {
			start = i
			open = r
			if r == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i, r := range input[start:] {
		if escaped {
			escaped = false
			continue
		}
		switch {
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
			// 字符串内部的括号不参与配对
		case r == open:
			depth++
		case r == close:
			depth--
			if depth == 0 {
				return input[start : start+i+1], true
			}
		}
	}

	return "", false
}
