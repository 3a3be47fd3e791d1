package telemetry

import (
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"
)

// ActionCategory groups spans by the kind of work they represent.
type ActionCategory string

const (
	Pollination ActionCategory = "pollination"
	AdapterLife ActionCategory = "adapter_lifecycle"
	Scoring     ActionCategory = "scoring"
)

func (c ActionCategory) String() string { return string(c) }

// SpanAttributes is a builder for the attribute set attached to a span.
type SpanAttributes struct {
	ActionCategory string

	fuzzerIdentifier optional[string] // fuzzer.identifier
	eliteLength      optional[int]    // fuzzer.pollination.elite_length
	selectedCount    optional[int]    // fuzzer.pollination.selected_count
	candidateCount   optional[int]    // fuzzer.pollination.candidate_count

	extraAttributes map[string]any
}

func NewSpanAttributes(category ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  category.String(),
		extraAttributes: make(map[string]any),
	}
}

func (o *SpanAttributes) WithFuzzerIdentifier(val string) *SpanAttributes {
	o.fuzzerIdentifier.Set(val)
	return o
}

func (o *SpanAttributes) WithEliteLength(val int) *SpanAttributes {
	o.eliteLength.Set(val)
	return o
}

func (o *SpanAttributes) WithSelectedCount(val int) *SpanAttributes {
	o.selectedCount.Set(val)
	return o
}

func (o *SpanAttributes) WithCandidateCount(val int) *SpanAttributes {
	o.candidateCount.Set(val)
	return o
}

func (o *SpanAttributes) WithExtraAttributes(attrs map[string]any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	maps.Copy(o.extraAttributes, attrs)
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	attrs = append(attrs, attribute.String("fuzzer.action.category", o.ActionCategory))
	if o.fuzzerIdentifier.set {
		attrs = append(attrs, attribute.String("fuzzer.identifier", o.fuzzerIdentifier.val))
	}
	if o.eliteLength.set {
		attrs = append(attrs, attribute.Int("fuzzer.pollination.elite_length", o.eliteLength.val))
	}
	if o.selectedCount.set {
		attrs = append(attrs, attribute.Int("fuzzer.pollination.selected_count", o.selectedCount.val))
	}
	if o.candidateCount.set {
		attrs = append(attrs, attribute.Int("fuzzer.pollination.candidate_count", o.candidateCount.val))
	}
	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }
