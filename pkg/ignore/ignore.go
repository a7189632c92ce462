package ignore

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 封装路径忽略逻辑 (gitignore 语法)
// 验证器用它跳过 manifest 中已知走带外存储的路径 (如 redacted 内容)：
// 这些路径的 blob 不在常规派生写路径上，存在性断言对它们不成立。
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 从规则列表构造匹配器
// 空规则列表返回 nil，调用方可以用 nil Matcher 表示“不跳过任何路径”
func NewMatcher(patterns []string) *Matcher {
	if len(patterns) == 0 {
		return nil
	}
	return &Matcher{
		ignorer: gitignore.CompileIgnoreLines(patterns...),
	}
}

// Match 判断一个 manifest 路径是否被忽略
// nil-safe：未配置规则时永远返回 false
func (m *Matcher) Match(path string) bool {
	if m == nil || path == "" {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
