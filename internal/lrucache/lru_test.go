package lrucache

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLRUCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "LRU Cache Suite")
}

var _ = Describe("Cache", func() {
	var c *Cache

	Describe("Set/Get", func() {
		It("round-trips a value", func() {
			c = New(10)
			c.Set("a", 1)

			v, ok := c.Get("a")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(1))
		})
	})

	Describe("eviction", func() {
		It("evicts the least recently used entry first", func() {
			c = New(3)
			c.Set("a", 1)
			c.Set("b", 2)
			c.Set("c", 3)
			c.Set("d", 4) // evicts "a" (never read back)

			_, ok := c.Get("a")
			Expect(ok).To(BeFalse())

			stats := c.Stats()
			Expect(stats.Evictions).To(Equal(int64(1)))
			Expect(stats.Size).To(Equal(3))
		})

		It("promotes a read entry to the head, protecting it from eviction", func() {
			c = New(2)
			c.Set("a", 1)
			c.Set("b", 2)
			c.Get("a") // "a" now most recently used; "b" becomes eviction target
			c.Set("c", 3)

			_, ok := c.Get("b")
			Expect(ok).To(BeFalse())
			_, ok = c.Get("a")
			Expect(ok).To(BeTrue())
		})
	})

	Describe("Stats", func() {
		It("tracks hit rate across Get calls", func() {
			c = New(10)
			c.Set("a", 1)
			c.Get("a")
			c.Get("missing")

			stats := c.Stats()
			Expect(stats.Hits).To(Equal(int64(1)))
			Expect(stats.Misses).To(Equal(int64(1)))
			Expect(stats.HitRate()).To(Equal(0.5))
		})
	})

	Describe("Delete", func() {
		It("is a no-op on a missing key", func() {
			c = New(10)
			Expect(func() { c.Delete("nope") }).NotTo(Panic())
		})
	})

	Describe("Resize", func() {
		It("evicts from the tail down to the new capacity", func() {
			c = New(10)
			for _, k := range []string{"a", "b", "c", "d"} {
				c.Set(k, k)
			}
			c.Resize(2)

			Expect(c.Len()).To(Equal(2))
			_, ok := c.Get("c")
			Expect(ok).To(BeTrue())
			_, ok = c.Get("d")
			Expect(ok).To(BeTrue())
		})
	})

	Describe("Clear", func() {
		It("resets entries but not cumulative stats", func() {
			c = New(10)
			c.Set("a", 1)
			c.Get("a")
			c.Clear()

			Expect(c.Len()).To(Equal(0))
			Expect(c.Stats().Hits).To(Equal(int64(1)))
		})
	})

	Describe("EvictOlderThan", func() {
		It("removes entries older than the cutoff", func() {
			c = New(10)
			c.Set("a", 1)

			removed := c.EvictOlderThan(-1) // "older than a future cutoff" i.e. everything
			Expect(removed).To(Equal(1))
			Expect(c.Len()).To(Equal(0))
		})
	})
})
