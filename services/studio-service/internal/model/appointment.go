package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Appointment struct {
	ID              string
	StudioID        string
	ClientName      string
	ClientEmail     string
	AppointmentDate time.Time
	Description     string
	Price           decimal.NullDecimal
	Deposit         decimal.NullDecimal
	DepositPaid     bool
	Status          Status
	PaymentStatus   PaymentStatus
	CalendarEventID string
	ReminderSentAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Draft is a validated booking request, before the store assigns identity.
type Draft struct {
	StudioID        string
	ClientName      string
	ClientEmail     string
	AppointmentDate time.Time
	Description     string
	Price           decimal.NullDecimal
	Deposit         decimal.NullDecimal
	DepositPaid     bool
}

type Studio struct {
	ID                         string
	Name                       string
	Address                    string
	Phone                      string
	Timezone                   string
	EmailNotificationsEnabled  bool
	CalendarIntegrationEnabled bool
	CalendarCredentials        string
	SMTP                       SMTPSettings
}

type SMTPSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (s SMTPSettings) Configured() bool {
	return s.Host != "" && s.Port > 0
}
