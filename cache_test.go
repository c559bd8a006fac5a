// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dynq

import (
	"runtime"
	"time"

	. "gopkg.in/check.v1"
)

type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

type item struct {
	N int
}

func (s *CacheSuite) items(c *C) *Slice {
	seq, err := FromSlice([]item{{1}, {2}, {3}})
	c.Assert(err, IsNil)
	return seq
}

func (s *CacheSuite) TestResultReuse(c *C) {
	var id sliceID
	// For a result to be removed from the cache the sequence needs to go out
	// of scope and be garbage collected. A function is used to "forget" the
	// sequence.
	func() {
		q, err := Where(s.items(c), "N > 1")
		c.Assert(err, IsNil)
		cached, err := Cached(q, &CacheSettings{})
		c.Assert(err, IsNil)
		id = cached.(*Slice).cacheID
		s.checkNotInCache(c, id)

		v1, err := cached.(Executor).Execute()
		c.Assert(err, IsNil)
		s.checkInCache(c, id)

		v2, err := cached.(Executor).Execute()
		c.Assert(err, IsNil)
		c.Assert(v1.Pointer(), Equals, v2.Pointer())
		c.Assert(v2.Len(), Equals, 2)
	}()

	s.triggerFinalizers()
	s.checkNotInCache(c, id)
}

func (s *CacheSuite) TestResultExpiry(c *C) {
	cached, err := s.items(c).WithCache(CacheSettings{Duration: time.Nanosecond})
	c.Assert(err, IsNil)
	exec := cached.(Executor)
	v1, err := exec.Execute()
	c.Assert(err, IsNil)
	time.Sleep(time.Millisecond)
	v2, err := exec.Execute()
	c.Assert(err, IsNil)
	c.Assert(v1.Pointer(), Not(Equals), v2.Pointer())
}

func (s *CacheSuite) TestAttachedSequenceNotCached(c *C) {
	cached, err := s.items(c).WithCache(nil)
	c.Assert(err, IsNil)
	q, err := Take(cached, 1)
	c.Assert(err, IsNil)
	c.Assert(q.(*Slice).cacheID, Equals, sliceID(0))
}

func (s *CacheSuite) TestFailedExecutionNotCached(c *C) {
	q, err := Where(s.items(c), "100 / (N - 2) > 0")
	c.Assert(err, IsNil)
	cached, err := Cached(q, nil)
	c.Assert(err, IsNil)
	_, err = cached.(Executor).Execute()
	c.Assert(err, ErrorMatches, "attempted to divide by zero")
	s.checkNotInCache(c, cached.(*Slice).cacheID)
}

func (s *CacheSuite) triggerFinalizers() {
	// Try to run finalizers by calling GC several times.
	for i := 0; i <= 10; i++ {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
}

func (s *CacheSuite) checkInCache(c *C, id sliceID) {
	results.mutex.RLock()
	defer results.mutex.RUnlock()
	_, ok := results.results[id]
	c.Assert(ok, Equals, true, Commentf("sequence %d not in result cache", id))
}

func (s *CacheSuite) checkNotInCache(c *C, id sliceID) {
	results.mutex.RLock()
	defer results.mutex.RUnlock()
	_, ok := results.results[id]
	c.Assert(ok, Equals, false, Commentf("sequence %d in result cache", id))
}
