package ledger

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex 按 key 加互斥锁，key 不再使用时条目自动回收。
// 分片降低全局 map 的锁竞争。
type KeyedMutex struct {
	shards []keyedShard
}

type keyedShard struct {
	mu sync.Mutex
	m  map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex 创建按 key 加锁的互斥量
func NewKeyedMutex(shardCount int) *KeyedMutex {
	if shardCount <= 0 {
		shardCount = 32
	}
	shards := make([]keyedShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]*keyedEntry)
	}
	return &KeyedMutex{shards: shards}
}

// Lock 阻塞直到获得 key 的锁，返回解锁函数（只能调用一次）
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	sh := k.shard(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if !ok {
		e = &keyedEntry{}
		sh.m[key] = e
	}
	e.refs++
	sh.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			sh.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(sh.m, key)
			}
			sh.mu.Unlock()
		})
	}
}

// Len 当前持有或等待中的 key 数量
func (k *KeyedMutex) Len() int {
	n := 0
	for i := range k.shards {
		sh := &k.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

func (k *KeyedMutex) shard(key string) *keyedShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%uint32(len(k.shards))]
}
