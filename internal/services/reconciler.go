package services

import (
	"context"
	"sync"
	"time"
	"wikits/internal/logger"
)

// MetricsReconciler 后台对账：追踪后按需批量重算单个活动，并按固定间隔全量重算
type MetricsReconciler struct {
	ads      *AdsService
	log      *logger.Logger
	interval time.Duration

	queue   chan uint // 待对账的活动 ID
	pending map[uint]bool
	mu      sync.Mutex

	batchSize  int
	batchDelay time.Duration
}

func NewMetricsReconciler(ads *AdsService, interval time.Duration, baseLog *logger.Logger) *MetricsReconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &MetricsReconciler{
		ads:        ads,
		log:        baseLog.With("service", "MetricsReconciler"),
		interval:   interval,
		queue:      make(chan uint, 1000), // 缓冲队列，防止阻塞请求
		pending:    make(map[uint]bool),
		batchSize:  50,
		batchDelay: 2 * time.Second,
	}
}

// Schedule 将活动加入对账队列（异步），已在队列中的跳过
func (r *MetricsReconciler) Schedule(campaignID uint) {
	r.mu.Lock()
	if r.pending[campaignID] {
		r.mu.Unlock()
		return
	}
	r.pending[campaignID] = true
	r.mu.Unlock()

	// 非阻塞发送
	select {
	case r.queue <- campaignID:
	default:
		// 队列满了，移除 pending 标记，等下一次全量对账
		r.mu.Lock()
		delete(r.pending, campaignID)
		r.mu.Unlock()
		r.log.Warn("Reconcile queue full, skipping", "campaign_id", campaignID)
	}
}

// Start 启动后台 worker，ctx 取消时退出
func (r *MetricsReconciler) Start(ctx context.Context) {
	go r.worker(ctx)
}

func (r *MetricsReconciler) worker(ctx context.Context) {
	batch := make([]uint, 0, r.batchSize)
	flush := time.NewTicker(r.batchDelay)
	full := time.NewTicker(r.interval)
	defer flush.Stop()
	defer full.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			batch = append(batch, id)
			if len(batch) >= r.batchSize {
				r.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-flush.C:
			if len(batch) > 0 {
				r.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-full.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("Scheduled reconciliation failed", "error", err)
			}
		}
	}
}

func (r *MetricsReconciler) processBatch(ctx context.Context, ids []uint) {
	for _, id := range ids {
		// 先清除标记：重算期间到达的追踪会重新入队
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		if _, err := r.ads.ReconcileMetrics(ctx, id); err != nil {
			r.log.Warn("Reconcile campaign failed", "campaign_id", id, "error", err)
		}
	}
}

// RunOnce 立即全量对账
func (r *MetricsReconciler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.ads.ReconcileAll(ctx)
	if err != nil {
		return n, err
	}
	r.log.Info("Campaign metrics reconciled", "campaigns", n, "took", time.Since(start).String())
	return n, nil
}
