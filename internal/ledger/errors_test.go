package ledger

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/dexbot/goladder/internal/domain"
)

var domainOrderStub = domain.Order{ID: "1.7.42", Side: domain.SideBuy, Price: 1.5, BaseAmount: 10, ForSale: 10}

func TestKindOfWalksWrappedChains(t *testing.T) {
	base := wrap(KindStaleBalance, "place_buy", errors.New("boom"))
	assert.Equal(t, KindStaleBalance, KindOf(base))
	assert.Equal(t, KindStaleBalance, KindOf(errors.WithMessage(base, "outer")))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindClassification(t *testing.T) {
	for _, k := range []ErrorKind{KindStaleBalance, KindExpiry, KindNodeLag} {
		assert.True(t, k.Transient(), k.String())
	}
	for _, k := range []ErrorKind{KindUnknown, KindInsufficientFee, KindUnknownOrder} {
		assert.False(t, k.Transient(), k.String())
	}
}

func TestKindFromCode(t *testing.T) {
	assert.Equal(t, KindStaleBalance, kindFromCode("stale_balance"))
	assert.Equal(t, KindExpiry, kindFromCode("tx_expired"))
	assert.Equal(t, KindExpiry, kindFromCode("clock_skew"))
	assert.Equal(t, KindNodeLag, kindFromCode("unavailable"))
	assert.Equal(t, KindInsufficientFee, kindFromCode("insufficient_fee"))
	assert.Equal(t, KindUnknownOrder, kindFromCode("unknown_order"))
	assert.Equal(t, KindUnknown, kindFromCode("whatever"))
}

func TestRetryRecoversTransient(t *testing.T) {
	log := logrus.WithField("test", t.Name())
	calls := 0
	err := Retry(context.Background(), log, "op", func() error {
		calls++
		if calls < 3 {
			return wrap(KindStaleBalance, "op", errors.New("race"))
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnUnretryable(t *testing.T) {
	log := logrus.WithField("test", t.Name())
	calls := 0
	err := Retry(context.Background(), log, "op", func() error {
		calls++
		return wrap(KindInsufficientFee, "op", errors.New("no fee"))
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindInsufficientFee, KindOf(err))
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	log := logrus.WithField("test", t.Name())
	calls := 0
	err := Retry(context.Background(), log, "op", func() error {
		calls++
		return wrap(KindStaleBalance, "op", errors.New("still racing"))
	})
	assert.Equal(t, maxAttempts, calls)
	assert.Equal(t, KindStaleBalance, KindOf(err))
}

func TestRetryHonoursContext(t *testing.T) {
	log := logrus.WithField("test", t.Name())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, log, "op", func() error {
		return wrap(KindNodeLag, "op", errors.New("down"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchRecordsOps(t *testing.T) {
	b := NewBatch()
	assert.True(t, b.Empty())
	assert.NotEmpty(t, b.ID)

	b.PlaceBuy(1.5, 10)
	b.PlaceSell(2.5, 20)
	virtual := domain.Order{Side: domain.SideSell, Price: 9, BaseAmount: 1}
	b.Cancel(&domainOrderStub, nil, &virtual) // nil and virtual entries are skipped
	assert.Equal(t, 3, b.Len())

	ops := b.Ops()
	assert.Equal(t, OpPlaceBuy, ops[0].Kind)
	assert.Equal(t, 1.5, ops[0].Price)
	assert.Equal(t, OpPlaceSell, ops[1].Kind)
	assert.Equal(t, OpCancel, ops[2].Kind)
	assert.Equal(t, "1.7.42", ops[2].OrderID)

	var empty *Batch
	assert.True(t, empty.Empty())
	assert.Zero(t, empty.Len())
}
