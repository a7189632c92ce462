package validate

import "dagaudit/pkg/derive"

const (
	// DefaultChunkSize: 每个 overlay 生命周期内处理的提交数
	// chunk 太大，内存写日志会膨胀；太小，派生框架的缓存收益下降
	DefaultChunkSize = 10000

	// DefaultConcurrency: 单个 chunk 内同时在飞的验证任务上限
	// diff 遍历对后端有读放大，这个上限保护的是后端，不是 CPU
	DefaultConcurrency = 100
)

// Options 控制一次验证运行
type Options struct {
	// Kind: 要验证的派生数据种类 (必填)
	Kind derive.Kind

	// ChunkSize: 每个 chunk 的提交数，0 取 DefaultChunkSize
	ChunkSize int

	// Concurrency: chunk 内并发上限，0 取 DefaultConcurrency
	Concurrency int

	// IgnorePatterns: gitignore 语法的路径规则
	// 匹配路径的条目跳过 blob 存在性断言 (派生等值比较不受影响)
	IgnorePatterns []string
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}
