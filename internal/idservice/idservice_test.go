package idservice

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/model"
)

func TestIDService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ID Service Suite")
}

type fakeAllocator struct {
	fail bool
	next int64
}

func (f *fakeAllocator) NextID(context.Context) (int64, error) {
	if f.fail {
		return 0, errors.New("store unreachable")
	}
	f.next++
	return f.next, nil
}

type fakeProber struct {
	exists bool
	err    error
}

func (f *fakeProber) ExistsByShortCode(context.Context, string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.exists, nil
}

func newManager(alloc *fakeAllocator, prober *fakeProber) *Manager {
	opts := DefaultOptions()
	opts.FailureThreshold = 2
	opts.OpenTimeout = time.Hour // keep it open for the duration of the test
	return New(alloc, prober, opts, zap.NewNop())
}

var _ = Describe("Manager tri-state breaker FSM", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("MintCode", func() {
		It("uses the counter allocator while healthy", func() {
			m := newManager(&fakeAllocator{}, &fakeProber{})

			res, err := m.MintCode(ctx, "https://example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Source).To(Equal(model.BreakerCounter))
			Expect(m.State()).To(Equal(model.BreakerCounter))
		})

		It("falls back to hash after the failure threshold trips the breaker", func() {
			alloc := &fakeAllocator{fail: true}
			prober := &fakeProber{}
			m := newManager(alloc, prober)

			By("surfacing a transient error below threshold, breaker still closed")
			_, err := m.MintCode(ctx, "https://example.com/a")
			Expect(apierrors.Is(err, apierrors.KindTransient)).To(BeTrue())

			By("falling back to hash once the second failure trips the breaker")
			res, err := m.MintCode(ctx, "https://example.com/b")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Source).To(Equal(model.BreakerHash))
			Expect(m.State()).To(Equal(model.BreakerHash))
		})

		It("goes unavailable once the hash fallback is itself exhausted", func() {
			alloc := &fakeAllocator{fail: true}
			prober := &fakeProber{} // hash succeeds while tripping the breaker
			m := newManager(alloc, prober)

			By("tripping the breaker into the hash state across two calls")
			for i := 0; i < 2; i++ {
				_, _ = m.MintCode(ctx, "https://example.com")
			}
			Expect(m.State()).To(Equal(model.BreakerHash))

			By("flipping to unavailable once hash itself starts failing")
			prober.err = errors.New("redis and postgres both down")

			_, err := m.MintCode(ctx, "https://example.com")
			Expect(apierrors.Is(err, apierrors.KindCircuitOpen)).To(BeTrue())
			Expect(m.State()).To(Equal(model.BreakerUnavailable))

			By("short-circuiting subsequent calls without re-probing hash")
			_, err = m.MintCode(ctx, "https://example.com")
			Expect(apierrors.Is(err, apierrors.KindCircuitOpen)).To(BeTrue())
		})
	})

	Describe("MintAlias", func() {
		It("succeeds when the alias is free", func() {
			m := newManager(&fakeAllocator{}, &fakeProber{})

			res, err := m.MintAlias(ctx, "my-alias")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ShortCode).To(Equal("my-alias"))
		})

		It("rejects a colliding alias as a conflict", func() {
			m := newManager(&fakeAllocator{}, &fakeProber{exists: true})

			_, err := m.MintAlias(ctx, "taken-alias")
			Expect(apierrors.Is(err, apierrors.KindConflict)).To(BeTrue())
		})
	})
})
