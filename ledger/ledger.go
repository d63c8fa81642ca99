// Package ledger implements the purchase and redemption lifecycle on top of a
// store.LedgerStore. Races between staff devices are settled by the store's
// guarded updates; the checks here only produce precise errors for the common
// case.
package ledger

import (
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRedemptionTTL = 24 * time.Hour
)

// DefaultPegSizes are the pour sizes in millilitres a customer can request.
var DefaultPegSizes = []int{30, 45, 60}

var tracer = otel.Tracer("storemybottle-backend/ledger")

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type Options struct {
	PegSizes      []int
	RedemptionTTL time.Duration
	Clock         Clock
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.PegSizes) == 0 {
		o.PegSizes = DefaultPegSizes
	}
	sizes := append([]int(nil), o.PegSizes...)
	sort.Ints(sizes)
	o.PegSizes = sizes
	if o.RedemptionTTL <= 0 {
		o.RedemptionTTL = DefaultRedemptionTTL
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
