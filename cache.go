// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dynq

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// CacheSettings configures the result cache of a [Slice]. A zero Duration
// keeps results until the sequence is garbage collected.
type CacheSettings struct {
	Duration time.Duration
}

// sliceIDCount is used to generate unique IDs.
var sliceIDCount uint64

type sliceID = uint64

type cachedResult struct {
	value   reflect.Value
	expires time.Time
}

// resultCache holds the results of executing cached sequences, indexed by
// sequence ID.
//
// The cache removes the result of a sequence with a finalizer on the
// sequence, so results live no longer than the sequence they came from.
//
// The mutex must be locked when accessing results.
type resultCache struct {
	results map[sliceID]cachedResult
	mutex   sync.RWMutex
}

var once sync.Once
var singleResultCache *resultCache

// newResultCache returns the single instance of the result cache.
func newResultCache() *resultCache {
	once.Do(func() {
		singleResultCache = &resultCache{
			results: map[sliceID]cachedResult{},
		}
	})
	return singleResultCache
}

var results = newResultCache()

// WithCache returns a copy of the sequence whose results are kept after the
// first call to Execute. The settings must be nil, a CacheSettings or a
// *CacheSettings.
func (s *Slice) WithCache(settings any) (Queryable, error) {
	var cs CacheSettings
	switch settings := settings.(type) {
	case nil:
	case CacheSettings:
		cs = settings
	case *CacheSettings:
		if settings != nil {
			cs = *settings
		}
	default:
		return nil, fmt.Errorf("unsupported cache settings %T", settings)
	}
	return results.newSlice(s, cs), nil
}

// newSlice returns a copy of s with a new cache ID. A finalizer is set on the
// copy to remove its result from the cache once it is garbage collected.
func (rc *resultCache) newSlice(s *Slice, settings CacheSettings) *Slice {
	cached := &Slice{
		source:   s.source,
		elem:     s.elem,
		stages:   s.stages,
		cacheID:  atomic.AddUint64(&sliceIDCount, 1),
		settings: settings,
	}
	runtime.SetFinalizer(cached, rc.getSliceFinalizer())
	return cached
}

// get returns the cached result of s, executing s if there is no current
// result.
func (rc *resultCache) get(s *Slice) (reflect.Value, error) {
	now := time.Now()
	rc.mutex.RLock()
	r, ok := rc.results[s.cacheID]
	rc.mutex.RUnlock()
	if ok && (r.expires.IsZero() || now.Before(r.expires)) {
		return r.value, nil
	}

	v, err := s.run()
	if err != nil {
		return reflect.Value{}, err
	}
	rc.mutex.Lock()
	defer rc.mutex.Unlock()
	// Check if a result has been inserted by someone else since we last
	// checked.
	if r, ok := rc.results[s.cacheID]; ok && (r.expires.IsZero() || now.Before(r.expires)) {
		return r.value, nil
	}
	r = cachedResult{value: v}
	if s.settings.Duration > 0 {
		r.expires = now.Add(s.settings.Duration)
	}
	rc.results[s.cacheID] = r
	return v, nil
}

// getSliceFinalizer returns a finalizer that removes the result of a Slice
// from the cache.
func (rc *resultCache) getSliceFinalizer() func(*Slice) {
	return func(s *Slice) {
		rc.mutex.Lock()
		defer rc.mutex.Unlock()
		delete(rc.results, s.cacheID)
	}
}
