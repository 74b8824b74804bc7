package data

import (
	"context"
	"sync"

	"spinner/internal/biz"

	"github.com/yola1107/kratos/v2/log"
)

type orderRepo struct {
	data *Data
	log  *log.Helper
}

// NewOrderRepo builds the spin-order repo. Without a database it keeps a
// bounded per-player history in memory.
func NewOrderRepo(data *Data, logger log.Logger) biz.OrderRepo {
	helper := log.NewHelper(logger)
	if data.db == nil {
		return newMemoryOrderRepo()
	}
	if err := data.db.Sync2(new(biz.SpinOrder)); err != nil {
		helper.Warnf("sync spin_order table: %v", err)
	}
	return &orderRepo{data: data, log: helper}
}

func (r *orderRepo) Save(ctx context.Context, o *biz.SpinOrder) error {
	_, err := r.data.db.Context(ctx).Insert(o)
	return err
}

func (r *orderRepo) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*biz.SpinOrder, error) {
	var orders []*biz.SpinOrder
	err := r.data.db.Context(ctx).
		Where("player_id = ?", playerID).
		Desc("id").
		Limit(limit).
		Find(&orders)
	return orders, err
}

// ==================== memory fallback ====================

const _memoryOrderLimit = 200

type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[string][]*biz.SpinOrder // playerID -> newest first
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: make(map[string][]*biz.SpinOrder)}
}

func (r *memoryOrderRepo) Save(_ context.Context, o *biz.SpinOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *o
	list := append([]*biz.SpinOrder{&c}, r.orders[o.PlayerID]...)
	if len(list) > _memoryOrderLimit {
		list = list[:_memoryOrderLimit]
	}
	r.orders[o.PlayerID] = list
	return nil
}

func (r *memoryOrderRepo) ListByPlayer(_ context.Context, playerID string, limit int) ([]*biz.SpinOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.orders[playerID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]*biz.SpinOrder, len(list))
	copy(out, list)
	return out, nil
}
