// Package orders 维护会话内全部订单记录。
// 以交易所订单 ID 为主键、客户端订单 ID（CID）为辅助索引；
// 记录只覆盖不删除，进程生命周期内保留历史。
package orders

import (
	"sort"

	"github.com/samber/lo"

	"circular-arbitrage-bot/internal/core/model"
)

// Store 订单记录缓存（单写者）
type Store struct {
	// byID 按交易所订单 ID 索引
	byID map[int64]*model.Order
}

// New 创建订单记录缓存
func New() *Store {
	return &Store{byID: make(map[int64]*model.Order)}
}

// Update 应用一批订单记录（os 快照与 on/ou/oc 增量共用）
// 同 ID 记录原地覆盖。
func (s *Store) Update(os []model.Order) {
	for i := range os {
		o := os[i]
		if o.ID == 0 {
			continue
		}
		s.byID[o.ID] = &o
	}
}

// ByID 按交易所订单 ID 查找，未找到返回 nil
func (s *Store) ByID(id int64) *model.Order {
	return s.byID[id]
}

// ByCID 按客户端订单 ID 查找
// 命中多条时返回最近更新的一条（重试会复用 CID）。
func (s *Store) ByCID(cid int64) *model.Order {
	matches := lo.Filter(lo.Values(s.byID), func(o *model.Order, _ int) bool {
		return o.CID == cid
	})
	if len(matches) == 0 {
		return nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].MtsUpdate > matches[j].MtsUpdate
	})
	return matches[0]
}

// ByGID 返回同一订单组的全部订单
func (s *Store) ByGID(gid int64) []*model.Order {
	return lo.Filter(lo.Values(s.byID), func(o *model.Order, _ int) bool {
		return o.GID == gid
	})
}

// ActiveOrders 返回当前活跃订单
func (s *Store) ActiveOrders() []*model.Order {
	return lo.Filter(lo.Values(s.byID), func(o *model.Order, _ int) bool {
		return o.IsActive()
	})
}

// HasActiveOrders 是否存在活跃订单
func (s *Store) HasActiveOrders() bool {
	return len(s.ActiveOrders()) != 0
}

// IsActiveByCID 按 CID 判断订单是否活跃
func (s *Store) IsActiveByCID(cid int64) bool {
	o := s.ByCID(cid)
	return o != nil && o.IsActive()
}
