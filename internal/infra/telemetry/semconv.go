package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for coordination telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrEnvironment specifies the deployment environment for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrModeFrom is the operating mode held before a transition.
	AttrModeFrom = attribute.Key("mode.from")
	// AttrModeTo is the operating mode requested by a transition.
	AttrModeTo = attribute.Key("mode.to")
	// AttrResult records the outcome of an operation.
	AttrResult = attribute.Key("result")
	// AttrEventType labels listener notifications by event tag.
	AttrEventType = attribute.Key("event.type")
	// AttrSource identifies the component that emitted a report record.
	AttrSource = attribute.Key("source")
	// AttrSeverity labels report records (info, error).
	AttrSeverity = attribute.Key("severity")
	// AttrOperation differentiates venue operations (connect, disconnect).
	AttrOperation = attribute.Key("operation")
	// AttrErrorType categorizes failures by errs code.
	AttrErrorType = attribute.Key("error.type")
)

// Metric names shared with histogram views.
const (
	MetricTransitionDuration = "dispatcher.transition.duration"
	MetricNotifyDuration     = "dispatcher.notify.duration"
	MetricUnwindDuration     = "dispatcher.unwind.duration"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// TransitionAttributes returns attributes for mode transition metrics.
func TransitionAttributes(from, to, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrModeFrom.String(from),
		AttrModeTo.String(to),
		AttrResult.String(result),
	}
}

// NotifyAttributes returns attributes for listener fan-out metrics.
func NotifyAttributes(eventType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrEventType.String(eventType),
	}
}

// ReportAttributes returns attributes for report sink metrics.
func ReportAttributes(source, severity, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrSource.String(source),
		AttrSeverity.String(severity),
		AttrResult.String(result),
	}
}

// OperationResultAttributes returns attributes for operation metrics with result classification.
func OperationResultAttributes(operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}

// ErrorAttributes returns attributes for error metrics.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrErrorType.String(errorType),
	}
}
