package logkey

const (
	TraceID = "Trace ID"
	ERROR   = "Error"
	OrderID = "Order ID"
)
