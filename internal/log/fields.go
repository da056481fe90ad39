package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldOwner       = "owner"
	FieldBillID      = "bill_id"
	FieldBillKind    = "bill_kind"
	FieldAmountCents = "amount_cents"
	FieldCategoryID  = "category_id"
	FieldPeriod      = "period"
	FieldReference   = "reference"
	FieldGranularity = "granularity"
	FieldSheetsRef   = "sheets_ref"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentBill    = "bill"
	ComponentReport  = "report"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCharts  = "charts"
)
