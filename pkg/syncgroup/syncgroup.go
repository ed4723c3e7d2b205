package syncgroup

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type syncGroupFunc func(ctx context.Context) error

type namedFunc struct {
	name string
	fn   syncGroupFunc
}

// SyncGroup 管理一组长期运行的 goroutine：任意一个返回错误即取消其余，
// Wait 返回第一个错误。
type SyncGroup struct {
	wg  sync.WaitGroup
	log logrus.FieldLogger

	sgFuncsMu sync.Mutex
	sgFuncs   []namedFunc
	hasRun    bool

	errOnce sync.Once
	err     error
	cancel  context.CancelFunc
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup(log logrus.FieldLogger) *SyncGroup {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SyncGroup{log: log}
}

// Add 添加一个 goroutine 函数，Run 之后再添加无效
func (w *SyncGroup) Add(name string, fn syncGroupFunc) {
	if fn == nil {
		return
	}
	w.sgFuncsMu.Lock()
	defer w.sgFuncsMu.Unlock()
	if w.hasRun {
		w.log.Warnf("SyncGroup 已启动，忽略 %s", name)
		return
	}
	w.sgFuncs = append(w.sgFuncs, namedFunc{name: name, fn: fn})
}

// Run 启动所有已添加的 goroutine，只生效一次
func (w *SyncGroup) Run(ctx context.Context) {
	w.sgFuncsMu.Lock()
	if w.hasRun {
		w.sgFuncsMu.Unlock()
		return
	}
	fns := w.sgFuncs
	w.sgFuncs = nil
	w.hasRun = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.sgFuncsMu.Unlock()

	for _, nf := range fns {
		w.wg.Add(1)
		go func(nf namedFunc) {
			defer w.wg.Done()
			if err := nf.fn(ctx); err != nil && ctx.Err() == nil {
				w.errOnce.Do(func() {
					w.err = errors.Wrap(err, nf.name)
					w.cancel()
				})
				w.log.Errorf("%s 退出: %v", nf.name, err)
				return
			}
			w.log.Debugf("%s 已退出", nf.name)
		}(nf)
	}
}

// Wait 等待所有 goroutine 完成，返回第一个错误
func (w *SyncGroup) Wait() error {
	w.wg.Wait()
	w.sgFuncsMu.Lock()
	cancel := w.cancel
	w.sgFuncsMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return w.err
}
