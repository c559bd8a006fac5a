// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package record

import (
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// layoutCache holds every layout created in the process, indexed by
// signature. Layouts are never evicted since the types they hold cannot be
// unloaded.
//
// The mutex must be locked when accessing layouts.
type layoutCache struct {
	layouts map[string]*Layout
	byType  map[reflect.Type]*Layout
	mutex   sync.RWMutex
	group   singleflight.Group
}

var once sync.Once
var singleLayoutCache *layoutCache

// newLayoutCache returns the single instance of the layout cache.
func newLayoutCache() *layoutCache {
	once.Do(func() {
		singleLayoutCache = &layoutCache{
			layouts: map[string]*Layout{},
			byType:  map[reflect.Type]*Layout{},
		}
	})
	return singleLayoutCache
}

// GetOrCreate returns the layout for the signature, creating it the first
// time the signature is seen. Concurrent callers with equal signatures all
// receive the same layout.
func GetOrCreate(sig Signature) (*Layout, error) {
	return newLayoutCache().getOrCreate(sig)
}

// Lookup returns the layout a synthesized type was created from.
func Lookup(t reflect.Type) (*Layout, bool) {
	lc := newLayoutCache()
	lc.mutex.RLock()
	defer lc.mutex.RUnlock()
	l, ok := lc.byType[t]
	return l, ok
}

func (lc *layoutCache) getOrCreate(sig Signature) (*Layout, error) {
	if err := sig.validate(); err != nil {
		return nil, err
	}
	key := sig.key()

	lc.mutex.RLock()
	layout, ok := lc.layouts[key]
	lc.mutex.RUnlock()
	if ok {
		layoutLookups.WithLabelValues("hit").Inc()
		return layout, nil
	}

	v, err, _ := lc.group.Do(key, func() (any, error) {
		lc.mutex.Lock()
		defer lc.mutex.Unlock()
		// Check if a layout has been inserted by someone else since we last
		// checked.
		if layout, ok := lc.layouts[key]; ok {
			layoutLookups.WithLabelValues("hit").Inc()
			return layout, nil
		}
		layout, err := newLayout(sig)
		if err != nil {
			return nil, err
		}
		lc.layouts[key] = layout
		lc.byType[layout.Type] = layout
		layoutLookups.WithLabelValues("miss").Inc()
		layoutCount.Set(float64(len(lc.layouts)))
		slog.Debug("created record type", "signature", sig.String(), "fields", len(sig))
		return layout, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Layout), nil
}
