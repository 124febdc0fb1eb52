package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for spans and metrics across the event log.
var (
	AttrEventID       = attribute.Key("oceanlog.event.id")
	AttrEventValue    = attribute.Key("oceanlog.event.value")
	AttrEventAuthor   = attribute.Key("oceanlog.event.author")
	AttrAuxDataSource = attribute.Key("oceanlog.auxdata.source")
	AttrCruiseID      = attribute.Key("oceanlog.cruise.id")
	AttrLoweringID    = attribute.Key("oceanlog.lowering.id")
	AttrUserID        = attribute.Key("oceanlog.user.id")
	AttrOperation     = attribute.Key("oceanlog.operation")
)

// EventOperation creates attributes for event CRUD operations.
func EventOperation(eventID, value, author, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEventID.String(eventID),
		AttrEventValue.String(value),
		AttrEventAuthor.String(author),
		AttrOperation.String(operation),
	}
}

// AuxDataOperation creates attributes for auxiliary data operations.
func AuxDataOperation(eventID, dataSource, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEventID.String(eventID),
		AttrAuxDataSource.String(dataSource),
		AttrOperation.String(operation),
	}
}

// ScopedQuery creates attributes for cruise- or lowering-scoped queries.
func ScopedQuery(cruiseID, loweringID, userID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCruiseID.String(cruiseID),
		AttrLoweringID.String(loweringID),
		AttrUserID.String(userID),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
