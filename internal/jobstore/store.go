package jobstore

import (
	"context"
	"errors"

	"mail-summary-service/internal/model"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// Store 保存所有进行中以及刚进入终态的任务
//
// 同一个 id 的读写都在记录自己的临界区内完成，调用方不会读到写了一半的记录。
type Store interface {
	// Create 插入一条新记录
	Create(ctx context.Context, job model.Job) error
	// Get 返回记录的快照，不存在时返回 ErrJobNotFound
	Get(ctx context.Context, id string) (model.Job, error)
	// Update 在临界区内执行 fn，记录不存在时返回 false 且不报错
	Update(ctx context.Context, id string, fn func(*model.Job)) (bool, error)
	// Delete 删除记录，记录不存在不报错
	Delete(ctx context.Context, id string) error
	// Take 原子地读取记录，若已是终态则同时删除，保证终态结果只交付一次
	Take(ctx context.Context, id string) (model.Job, error)
	// Ping 检查后端是否可用
	Ping(ctx context.Context) error
}
