package services

import (
	"context"

	"versus-service/models"
)

// RecordStore 比赛记录存储抽象。
//
// Update 是整个系统唯一的正确性保证: 实现必须对同一个
// match code 串行执行 Update,fn 拿到的是最新记录;
// fn 返回错误则本次更新完全丢弃,存储内容不变。
// 两个并发的抢答落到同一记录上时,后执行的 fn 一定能看到
// 先执行者写入的 BuzzHolder,从而被拒绝。
type RecordStore interface {
	// Get 读取记录,不存在返回 NotFound
	Get(ctx context.Context, code string) (*models.Match, error)

	// Create 插入新记录,code 冲突返回 Conflict
	Create(ctx context.Context, m *models.Match) error

	// Update 原子读-改-写。fn 在持有该 code 写锁的前提下执行,
	// 返回更新后的记录。
	Update(ctx context.Context, code string, fn func(*models.Match) error) (*models.Match, error)
}
