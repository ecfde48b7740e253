package stable

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// PriceFeed is the external read-only price source backing one collateral
// asset. LatestRound reports the raw price in the feed's native decimals
// together with the reading timestamp.
type PriceFeed interface {
	LatestRound() (price *big.Int, updatedAt time.Time, err error)
	Decimals() uint8
}

// feedAdapter normalizes raw feed readings to the 18-decimal working scale
// and optionally enforces a freshness heartbeat. A zero heartbeat disables
// staleness checking, matching the baseline design.
type feedAdapter struct {
	feed      PriceFeed
	heartbeat time.Duration
	nowFn     func() time.Time
}

func newFeedAdapter(feed PriceFeed) *feedAdapter {
	return &feedAdapter{feed: feed, nowFn: time.Now}
}

// price returns the latest feed price scaled to working precision. A
// non-positive price or a read failure is a hard OracleInvalidPrice failure;
// no fallback source is consulted.
func (a *feedAdapter) price() (*big.Int, error) {
	raw, updatedAt, err := a.feed.LatestRound()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleInvalidPrice, err)
	}
	if raw == nil || raw.Sign() <= 0 {
		return nil, ErrOracleInvalidPrice
	}
	if a.heartbeat > 0 {
		if age := a.nowFn().Sub(updatedAt); age > a.heartbeat {
			return nil, fmt.Errorf("%w: reading is %s old", ErrStalePrice, age)
		}
	}
	return normalizePrice(raw, a.feed.Decimals()), nil
}

func normalizePrice(raw *big.Int, decimals uint8) *big.Int {
	price := new(big.Int).Set(raw)
	switch {
	case decimals < 18:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		price.Mul(price, shift)
	case decimals > 18:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
		price.Quo(price, shift)
	}
	return price
}

// StaticFeed is an operator-set PriceFeed used for wiring and tests.
type StaticFeed struct {
	mu        sync.RWMutex
	price     *big.Int
	decimals  uint8
	updatedAt time.Time
	err       error
}

// NewStaticFeed returns a feed reporting the given price with the supplied
// native decimals. The reading timestamp starts at the current time.
func NewStaticFeed(price *big.Int, decimals uint8) *StaticFeed {
	f := &StaticFeed{decimals: decimals, updatedAt: time.Now()}
	if price != nil {
		f.price = new(big.Int).Set(price)
	}
	return f
}

// SetPrice updates the reported price and refreshes the reading timestamp.
func (f *StaticFeed) SetPrice(price *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if price == nil {
		f.price = nil
	} else {
		f.price = new(big.Int).Set(price)
	}
	f.updatedAt = time.Now()
}

// SetUpdatedAt overrides the reading timestamp. Intended for staleness tests
// and replaying recorded rounds.
func (f *StaticFeed) SetUpdatedAt(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedAt = t
}

// SetError makes subsequent reads fail with the supplied error.
func (f *StaticFeed) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *StaticFeed) LatestRound() (*big.Int, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.updatedAt, f.err
	}
	if f.price == nil {
		return nil, f.updatedAt, nil
	}
	return new(big.Int).Set(f.price), f.updatedAt, nil
}

func (f *StaticFeed) Decimals() uint8 { return f.decimals }
