package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ControllerSuite struct {
	suite.Suite
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) TestCapacityFor() {
	s.Run("heavy takes thirty percent with floor of two", func() {
		s.Equal(6, DefaultSizing.CapacityFor(ClassHeavy, 20))
		s.Equal(3, DefaultSizing.CapacityFor(ClassHeavy, 10))
		s.Equal(30, DefaultSizing.CapacityFor(ClassHeavy, 100))
	})

	s.Run("light takes half with floor of three", func() {
		s.Equal(10, DefaultSizing.CapacityFor(ClassLight, 20))
		s.Equal(5, DefaultSizing.CapacityFor(ClassLight, 10))
		s.Equal(3, Sizing{LightFraction: 0.1, LightMin: 3}.CapacityFor(ClassLight, 10))
	})
}

func (s *ControllerSuite) TestNewClampsBudget() {
	s.Equal(10, New(1).Budget())
	s.Equal(100, New(500).Budget())
	s.Equal(42, New(42).Budget())
}

func (s *ControllerSuite) TestClassOf() {
	c := New(20)
	s.Equal(ClassHeavy, c.ClassOf("spotify_student"))
	s.Equal(ClassHeavy, c.ClassOf("youtube_student"))
	s.Equal(ClassLight, c.ClassOf("bolt_teacher"))

	custom := New(20, WithHeavyCategories("bolt_teacher"))
	s.Equal(ClassHeavy, custom.ClassOf("bolt_teacher"))
	s.Equal(ClassLight, custom.ClassOf("spotify_student"))
}

func (s *ControllerSuite) TestAcquireBlocksAtCapacity() {
	c := New(10, WithSizing(Sizing{HeavyFraction: 0.2, HeavyMin: 2, LightFraction: 0.5, LightMin: 3}))
	ctx := context.Background()

	p1, err := c.Acquire(ctx, "spotify_student")
	s.Require().NoError(err)
	p2, err := c.Acquire(ctx, "spotify_student")
	s.Require().NoError(err)

	acquired := make(chan *Permit, 1)
	go func() {
		p3, err := c.Acquire(ctx, "spotify_student")
		if err == nil {
			acquired <- p3
		}
	}()

	select {
	case <-acquired:
		s.Fail("third attempt should wait while two permits are held")
	case <-time.After(50 * time.Millisecond):
	}

	p1.Release()

	select {
	case p3 := <-acquired:
		p3.Release()
	case <-time.After(time.Second):
		s.Fail("third attempt should proceed after a release")
	}
	p2.Release()

	snap := c.Snapshot()
	s.Require().Len(snap.Pools, 1)
	s.Equal(0, snap.Pools[0].InUse)
}

func (s *ControllerSuite) TestAcquireHonoursContext() {
	c := New(10, WithSizing(Sizing{HeavyMin: 1, LightMin: 1}))
	p, err := c.Acquire(context.Background(), "gemini_one_pro")
	s.Require().NoError(err)
	defer p.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, "gemini_one_pro")
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *ControllerSuite) TestReleaseIsIdempotent() {
	c := New(10, WithSizing(Sizing{HeavyMin: 1, LightMin: 1}))
	p, err := c.Acquire(context.Background(), "gemini_one_pro")
	s.Require().NoError(err)

	p.Release()
	p.Release()

	snap := c.Snapshot()
	s.Equal(0, snap.Pools[0].InUse)

	// capacity is still one: a double release must not have added a slot
	first, err := c.Acquire(context.Background(), "gemini_one_pro")
	s.Require().NoError(err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx, "gemini_one_pro")
	s.Error(err)
	first.Release()

	var nilPermit *Permit
	s.NotPanics(nilPermit.Release)
}

func (s *ControllerSuite) TestPoolsAreIndependent() {
	c := New(10, WithSizing(Sizing{HeavyMin: 1, LightMin: 1}))
	a, err := c.Acquire(context.Background(), "gemini_one_pro")
	s.Require().NoError(err)
	defer a.Release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := c.Acquire(ctx, "chatgpt_teacher_k12")
	s.Require().NoError(err)
	b.Release()
}

func (s *ControllerSuite) TestInUseNeverExceedsCapacity() {
	c := New(10)
	const category = "youtube_student"
	capacity := DefaultSizing.CapacityFor(ClassHeavy, 10)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Acquire(context.Background(), category)
			if err != nil {
				return
			}
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
			p.Release()
		}()
	}
	wg.Wait()

	s.LessOrEqual(peak.Load(), int64(capacity))
	s.Positive(peak.Load())
}

func (s *ControllerSuite) TestSetBudget() {
	s.Run("clamps and carries held permits into the resized pool", func() {
		c := New(20)
		held, err := c.Acquire(context.Background(), "bolt_teacher")
		s.Require().NoError(err)

		s.Equal(100, c.SetBudget(1000))
		snap := c.Snapshot()
		s.Equal(100, snap.Budget)
		s.Require().Len(snap.Pools, 1)
		s.Equal(50, snap.Pools[0].Capacity)
		s.Equal(1, snap.Pools[0].InUse)

		held.Release()
		s.Equal(0, c.Snapshot().Pools[0].InUse)
	})

	s.Run("unchanged capacity keeps the pool", func() {
		c := New(20)
		p, err := c.Acquire(context.Background(), "bolt_teacher")
		s.Require().NoError(err)
		defer p.Release()

		c.SetBudget(21) // floor(21*0.5) == floor(20*0.5)
		s.Equal(1, c.Snapshot().Pools[0].InUse)
	})

	s.Run("lower bound", func() {
		c := New(20)
		s.Equal(10, c.SetBudget(3))
		s.Equal(10, c.Budget())
	})
}

func (s *ControllerSuite) hold(c *Controller, category string, n int) []*Permit {
	permits := make([]*Permit, 0, n)
	for range n {
		p, err := c.Acquire(context.Background(), category)
		s.Require().NoError(err)
		permits = append(permits, p)
	}
	return permits
}

func (s *ControllerSuite) admitsWithin(c *Controller, category string, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	p, err := c.Acquire(ctx, category)
	if err != nil {
		return false
	}
	p.Release()
	return true
}

func (s *ControllerSuite) TestShrinkUnderLoadNeverOveradmits() {
	const category = "bolt_teacher"
	c := New(20)
	permits := s.hold(c, category, 10)

	s.Equal(14, c.SetBudget(14))
	s.Equal(7, c.Snapshot().Pools[0].Capacity)
	s.Equal(10, c.Snapshot().Pools[0].InUse)

	s.False(s.admitsWithin(c, category, 20*time.Millisecond), "ten held against capacity seven")

	// three releases only bring occupancy down to the new capacity
	for _, p := range permits[:3] {
		p.Release()
	}
	s.Equal(7, c.Snapshot().Pools[0].InUse)
	s.False(s.admitsWithin(c, category, 20*time.Millisecond))

	permits[3].Release()
	s.True(s.admitsWithin(c, category, time.Second))

	for _, p := range permits[4:] {
		p.Release()
	}
	s.Equal(0, c.Snapshot().Pools[0].InUse)

	// the pool is now exactly seven wide
	refill := s.hold(c, category, 7)
	s.False(s.admitsWithin(c, category, 20*time.Millisecond))
	for _, p := range refill {
		p.Release()
	}
}

func (s *ControllerSuite) TestWaiterMovesToResizedPool() {
	const category = "bolt_teacher"
	c := New(20)
	permits := s.hold(c, category, 10)

	admitted := make(chan *Permit, 1)
	go func() {
		p, err := c.Acquire(context.Background(), category)
		if err == nil {
			admitted <- p
		}
	}()

	select {
	case <-admitted:
		s.Fail("waiter admitted while the pool is full")
	case <-time.After(30 * time.Millisecond):
	}

	c.SetBudget(40)

	select {
	case p := <-admitted:
		p.Release()
	case <-time.After(time.Second):
		s.Fail("waiter should be admitted once the pool grows")
	}

	s.Equal(10, c.Snapshot().Pools[0].InUse)
	for _, p := range permits {
		p.Release()
	}
}

func (s *ControllerSuite) TestGrowAdmitsUpToNewCapacity() {
	const category = "bolt_teacher"
	c := New(20)
	permits := s.hold(c, category, 10)

	c.SetBudget(40)
	permits = append(permits, s.hold(c, category, 10)...)
	s.Equal(20, c.Snapshot().Pools[0].InUse)
	s.False(s.admitsWithin(c, category, 20*time.Millisecond))

	for _, p := range permits {
		p.Release()
	}
	s.Equal(0, c.Snapshot().Pools[0].InUse)
}

func (s *ControllerSuite) TestSnapshotSorted() {
	c := New(20)
	for _, cat := range []string{"youtube_student", "bolt_teacher", "gemini_one_pro"} {
		p, err := c.Acquire(context.Background(), cat)
		s.Require().NoError(err)
		p.Release()
	}

	snap := c.Snapshot()
	s.Require().Len(snap.Pools, 3)
	s.Equal("bolt_teacher", snap.Pools[0].Category)
	s.Equal("gemini_one_pro", snap.Pools[1].Category)
	s.Equal("youtube_student", snap.Pools[2].Category)
	s.Equal(ClassHeavy, snap.Pools[2].Class)
}
