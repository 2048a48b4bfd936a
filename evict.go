package recache

import (
	"context"
	"runtime"
	"sort"
)

// evictHeapInUse drops the most-stale-by-load-time fraction of entries when
// process heap usage exceeds MemoryStoreOptions.HeapInUseSoftLimit. It is a
// secondary pressure valve on top of the sweep's stale/size trimming,
// grounded on the teacher's evict.go (Memory.evictHeapInUse).
func (s *InMemoryStore[K, V]) evictHeapInUse(ctx context.Context) {
	if s.opts.HeapInUseSoftLimit == 0 {
		return
	}

	runtime.GC()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	if m.HeapInuse < s.opts.HeapInUseSoftLimit {
		return
	}

	all := s.Entries(ctx)

	sort.Slice(all, func(i, j int) bool {
		return all[i].Entry.TimeLoaded.Before(all[j].Entry.TimeLoaded)
	})

	fraction := s.opts.HeapInUseEvictFraction
	if fraction == 0 {
		fraction = 0.1
	}

	evictCount := int(float64(len(all)) * fraction)

	s.addStat(ctx, MetricEvict, float64(evictCount))

	for i := 0; i < evictCount; i++ {
		s.data.Delete(all[i].Key)
	}
}
