package lookup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/distcache"
	"github.com/jordigilh/urlshort/internal/lrucache"
	"github.com/jordigilh/urlshort/internal/model"
)

func TestLookup(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Lookup Suite")
}

type fakeStore struct {
	byCode  map[string]*model.Mapping
	gets    int
	hottest []model.Mapping
}

func (f *fakeStore) GetMapping(_ context.Context, shortCode string) (*model.Mapping, error) {
	f.gets++
	m, ok := f.byCode[shortCode]
	if !ok {
		return nil, apierrors.NotFound("mapping-not-found", shortCode)
	}
	return m, nil
}

func (f *fakeStore) TouchAccess(context.Context, string, time.Time) error { return nil }

func (f *fakeStore) HottestMappings(context.Context, int) ([]model.Mapping, error) {
	return f.hottest, nil
}

var _ = Describe("Service three-tier lookup", func() {
	var (
		st  *fakeStore
		svc *Service
		ctx context.Context
	)

	newService := func() *Service {
		mr, err := miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(mr.Close)

		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		local := lrucache.New(100)
		remote := distcache.New(rdb, time.Hour, zap.NewNop())
		return New(local, remote, st, zap.NewNop())
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = &fakeStore{byCode: map[string]*model.Mapping{}}
	})

	Describe("Resolve", func() {
		It("falls through to the store on a full cache miss", func() {
			exp := time.Now().Add(time.Hour)
			st.byCode["abc1234"] = &model.Mapping{ShortCode: "abc1234", LongURL: "https://example.com", ExpiresAt: &exp}
			svc = newService()

			m, err := svc.Resolve(ctx, "abc1234")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.LongURL).To(Equal("https://example.com"))
			Expect(st.gets).To(Equal(1))
		})

		It("serves the second call from the LRU without touching the store", func() {
			exp := time.Now().Add(time.Hour)
			st.byCode["abc1234"] = &model.Mapping{ShortCode: "abc1234", LongURL: "https://example.com", ExpiresAt: &exp}
			svc = newService()

			_, err := svc.Resolve(ctx, "abc1234")
			Expect(err).NotTo(HaveOccurred())
			_, err = svc.Resolve(ctx, "abc1234")
			Expect(err).NotTo(HaveOccurred())

			Expect(st.gets).To(Equal(1))
		})

		It("returns not-found for an expired mapping", func() {
			exp := time.Now().Add(-time.Minute)
			st.byCode["dead0001"] = &model.Mapping{ShortCode: "dead0001", LongURL: "https://example.com", ExpiresAt: &exp}
			svc = newService()

			_, err := svc.Resolve(ctx, "dead0001")
			Expect(apierrors.Is(err, apierrors.KindNotFound)).To(BeTrue())
		})

		It("returns not-found for an unknown code", func() {
			svc = newService()

			_, err := svc.Resolve(ctx, "missing1")
			Expect(apierrors.Is(err, apierrors.KindNotFound)).To(BeTrue())
		})
	})

	Describe("WarmUp", func() {
		It("populates both the LRU and distributed cache layers", func() {
			exp := time.Now().Add(time.Hour)
			st.hottest = []model.Mapping{{ShortCode: "hot00001", LongURL: "https://a.example", ExpiresAt: &exp}}
			svc = newService()

			Expect(svc.WarmUp(ctx, 10)).To(Succeed())

			_, ok := svc.local.Get("hot00001")
			Expect(ok).To(BeTrue())
			_, ok = svc.remote.Get(ctx, "hot00001")
			Expect(ok).To(BeTrue())
		})
	})
})
