package triprule

import "github.com/virtualtestset/vpac/pkg/goose"

// subscriberPoints is the read surface GooseSource needs from a
// *goose.Subscriber: a lookup by the "<gocbRef>[index]" key the subscriber
// uses to index its live data-object map.
type subscriberPoints interface {
	Point(key string) (goose.DataPoint, bool)
}

// GooseSource adapts a goose.Subscriber's data-object map to the
// Evaluator's DataSource contract. The subscriber's key strings are used verbatim as
// trip-rule paths; no structural parsing happens here.
type GooseSource struct {
	sub subscriberPoints
}

// NewGooseSource binds a GooseSource to a live subscriber.
func NewGooseSource(sub subscriberPoints) *GooseSource {
	return &GooseSource{sub: sub}
}

// Lookup implements DataSource by translating a goose.Value into the
// triprule Value representation by Kind. A missing point is reported as
// "not found", matching the evaluator's "missing path is false" contract.
func (g *GooseSource) Lookup(path string) (Value, bool) {
	p, ok := g.sub.Point(path)
	if !ok {
		return Value{}, false
	}
	return fromGooseValue(p.Value), true
}

func fromGooseValue(v goose.Value) Value {
	switch v.Kind {
	case goose.KindBool:
		return Value{Kind: VKBool, B: v.Bool}
	case goose.KindInt:
		return Value{Kind: VKInt, I: v.Int}
	case goose.KindUint:
		return Value{Kind: VKInt, I: int64(v.Uint)}
	case goose.KindFloat:
		return Value{Kind: VKFloat, F: v.Float}
	case goose.KindUTF8:
		return Value{Kind: VKString, S: v.Str}
	default:
		// Bitstrings have no scalar comparison in the trip-rule grammar;
		// surface as a string of the goose.Value's own formatting so an
		// equality-to-string rule can still match it.
		return Value{Kind: VKString, S: v.String()}
	}
}
