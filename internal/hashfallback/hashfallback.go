// Package hashfallback implements the hash-based short-code generator
// from spec §4.C: used by the ID service while the counter allocator's
// circuit is open. Hashing is stdlib-only — the spec names the exact
// algorithms (md5, sha256) and first-10-hex-chars rule, leaving no room
// for (and no pack grounding for) a third-party hashing library.
package hashfallback

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/base62"
)

// Algo selects the hash function per spec §4.C.
type Algo string

const (
	AlgoMD5    Algo = "md5"
	AlgoSHA256 Algo = "sha256"
)

// Prober probes the store for a short-code collision.
type Prober interface {
	ExistsByShortCode(ctx context.Context, shortCode string) (bool, error)
}

// Options configures one Generate call.
type Options struct {
	Algo       Algo
	MinLen     int
	MaxRetries int
	Salt       string
}

// DefaultOptions mirrors the spec's documented defaults.
func DefaultOptions() Options {
	return Options{Algo: AlgoSHA256, MinLen: 7, MaxRetries: 3, Salt: ""}
}

// Result reports the minted code alongside the collision density the
// caller can observe per spec §4.C.
type Result struct {
	Code       string
	Attempts   int
	Collisions int
}

// Generate composes input with an attempt suffix, salt suffix, and
// timestamp, hashes it, takes the first 10 hex characters, parses them
// as an integer, and Base62-encodes the result — retrying on collision
// up to MaxRetries times.
func Generate(ctx context.Context, prober Prober, input string, opts Options) (Result, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MinLen <= 0 {
		opts.MinLen = 7
	}

	res := Result{}
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		res.Attempts = attempt

		composed := fmt.Sprintf("%s|attempt=%d|salt=%s|ts=%d",
			input, attempt, opts.Salt, time.Now().UnixNano())

		digest := sum(opts.Algo, composed)
		n, err := parseFirst10Hex(digest)
		if err != nil {
			return res, apierrors.Wrap(apierrors.KindFatal, "hash-parse", err, "parsing hash prefix")
		}

		code, err := base62.Encode(n, opts.MinLen)
		if err != nil {
			return res, apierrors.Wrap(apierrors.KindFatal, "hash-encode", err, "encoding hash fallback code")
		}

		collides, err := prober.ExistsByShortCode(ctx, code)
		if err != nil {
			return res, apierrors.Wrap(apierrors.KindTransient, "hash-probe", err, "probing collision")
		}
		if !collides {
			res.Code = code
			return res, nil
		}
		res.Collisions++
	}

	return res, apierrors.New(apierrors.KindConflict, "exhausted",
		fmt.Sprintf("hash fallback exhausted after %d attempts", opts.MaxRetries))
}

func sum(algo Algo, s string) []byte {
	switch algo {
	case AlgoMD5:
		h := md5.Sum([]byte(s))
		return h[:]
	default:
		h := sha256.Sum256([]byte(s))
		return h[:]
	}
}

// parseFirst10Hex takes the first 10 hex characters of digest's hex
// encoding and parses them as a base-16 integer.
func parseFirst10Hex(digest []byte) (int64, error) {
	hexStr := hex.EncodeToString(digest)
	if len(hexStr) > 10 {
		hexStr = hexStr[:10]
	}
	return strconv.ParseInt(hexStr, 16, 64)
}
