package prompt

import (
	"strings"
)

// Delimiter 上传文件中分隔多封邮件的标记
const Delimiter = "---"

const instructions = `You are an expert email summarization system.
For each email separated by '---':
1. Extract the sender
2. Extract the subject
3. Summarize in 3-4 bullet points (main action/request/deadline)

Return a JSON array of objects with fields sender, subject, summary.`

// Build 把固定指令和原始邮件文本拼成一个 prompt
func Build(emails string) string {
	var b strings.Builder
	b.Grow(len(instructions) + len(emails) + 32)
	b.WriteString(instructions)
	b.WriteString("\n\nEMAIL DATA:\n")
	b.WriteString(Delimiter)
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(emails))
	b.WriteString("\n")
	b.WriteString(Delimiter)
	b.WriteString("\n")
	return b.String()
}

// CountEmails 统计以分隔行切开的非空邮件块数量，只用于日志和指标
func CountEmails(emails string) int {
	count := 0
	nonEmpty := false
	for _, line := range strings.Split(emails, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == Delimiter {
			if nonEmpty {
				count++
			}
			nonEmpty = false
			continue
		}
		if trimmed != "" {
			nonEmpty = true
		}
	}
	if nonEmpty {
		count++
	}
	return count
}
