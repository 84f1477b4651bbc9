// s3fifo.go adapts the teacher's S3-FIFO in-memory eviction layer
// (internal/anonymizer/s3fifo_cache.go in ai-anonymizing-proxy) to bound
// the hot set of this package's NER chunk-result cache instead of
// single-value anonymization tokens. The algorithm — two FIFO queues (S,
// M) plus a bounded ghost set — and its eviction rules are unchanged from
// the teacher; only the cached payload type differs.
package nercache

import (
	"container/list"
	"sync"

	"mcp-pii-proxy/internal/logger"
	"mcp-pii-proxy/internal/ner"
)

type s3fifoEntry struct {
	result Result
	freq   uint8
	elem   *list.Element
	inM    bool
}

// s3fifoStore wraps a Store with an S3-FIFO in-memory eviction layer.
type s3fifoStore struct {
	mu sync.Mutex

	capacity int
	sTarget  int
	ghostCap int

	entries map[string]*s3fifoEntry
	sQueue  *list.List
	mQueue  *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int

	backing Store
	log     *logger.Logger
}

// NewS3FIFOStore wraps backing with an S3-FIFO eviction layer bounding the
// in-memory (and, via eviction deletes, on-disk) footprint to roughly
// capacity entries. capacity < 2 is clamped to 2.
func NewS3FIFOStore(backing Store, capacity int, log *logger.Logger) Store {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := capacity / 10
	if sTarget < 1 {
		sTarget = 1
	}
	ghostCap := 2 * sTarget
	if ghostCap < 4 {
		ghostCap = 4
	}
	log.Infof("init", "S3-FIFO NER cache capacity=%d sTarget=%d ghostCap=%d", capacity, sTarget, ghostCap)
	return &s3fifoStore{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*s3fifoEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
		backing:  backing,
		log:      log,
	}
}

func (c *s3fifoStore) Get(key string) (Result, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.freq < 3 {
			e.freq++
		}
		result := e.result
		c.mu.Unlock()
		return result, true
	}
	c.mu.Unlock()

	result, ok := c.backing.Get(key)
	if !ok {
		return Result{}, false
	}
	c.insertLocked(key, result)
	return result, true
}

func (c *s3fifoStore) SetContains(key string, labels []string) {
	c.backing.SetContains(key, labels)
	result, _ := c.backing.Get(key)
	c.insertLocked(key, result)
}

func (c *s3fifoStore) SetDetect(key string, entities []ner.Entity) {
	c.backing.SetDetect(key, entities)
	result, _ := c.backing.Get(key)
	c.insertLocked(key, result)
}

func (c *s3fifoStore) Delete(key string) {
	c.mu.Lock()
	c.removeFromMemory(key)
	c.mu.Unlock()
	c.backing.Delete(key)
}

func (c *s3fifoStore) Close() error {
	return c.backing.Close()
}

func (c *s3fifoStore) insertLocked(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.result = result
		return
	}

	inM := c.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &s3fifoEntry{result: result, freq: 0, elem: elem, inM: inM}

	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		c.evictOne()
	}
}

func (c *s3fifoStore) evictOne() {
	if c.sQueue.Len() > 0 {
		c.evictFromS()
		return
	}
	c.evictFromM()
}

func (c *s3fifoStore) evictFromS() {
	front := c.sQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.sQueue.Remove(front)
		return
	}
	c.sQueue.Remove(front)

	e, ok := c.entries[key]
	if !ok {
		return
	}

	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		mTarget := c.capacity - c.sTarget
		if c.mQueue.Len() > mTarget {
			c.evictFromM()
		}
	} else {
		delete(c.entries, key)
		c.ghostAdd(key)
		c.backing.Delete(key)
	}
}

func (c *s3fifoStore) evictFromM() {
	front := c.mQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.mQueue.Remove(front)
		return
	}
	c.mQueue.Remove(front)
	delete(c.entries, key)
	c.backing.Delete(key)
}

func (c *s3fifoStore) removeFromMemory(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.inM {
		c.mQueue.Remove(e.elem)
	} else {
		c.sQueue.Remove(e.elem)
	}
	delete(c.entries, key)
}

func (c *s3fifoStore) ghostContains(key string) bool {
	_, ok := c.ghostSet[key]
	return ok
}

func (c *s3fifoStore) ghostAdd(key string) {
	if _, exists := c.ghostSet[key]; exists {
		return
	}
	if c.ghostCount == c.ghostCap {
		oldest := c.ghostBuf[c.ghostHead]
		delete(c.ghostSet, oldest)
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}
	writeIdx := (c.ghostHead + c.ghostCount) % c.ghostCap
	c.ghostBuf[writeIdx] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}
