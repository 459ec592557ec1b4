package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a stage run.
const (
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldNamespace = "namespace"
	FieldUnitID    = "unit_id"
	FieldBucketKey = "bucket_key"
	FieldWatermark = "watermark_id"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldInserted   = "inserted"
	FieldUpdated    = "updated"
	FieldSkipped    = "skipped"
)
