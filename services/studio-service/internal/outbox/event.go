package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"

	EventBooked      = "studio.appointment.booked.v1"
	EventCheckedIn   = "studio.appointment.checked_in.v1"
	EventDepositPaid = "studio.appointment.deposit_paid.v1"
	EventPaid        = "studio.appointment.paid.v1"
	EventCancelled   = "studio.appointment.cancelled.v1"
)
