package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/model"
)

type Template string

const (
	Confirmation Template = "confirmation"
	Reminder     Template = "reminder"
	Cancellation Template = "cancellation"
)

var subjects = map[Template]string{
	Confirmation: "Your tattoo appointment at %s is confirmed",
	Reminder:     "Reminder: your tattoo appointment at %s",
	Cancellation: "Your tattoo appointment at %s was cancelled",
}

const layout = `{{define "details"}}<p><strong>Date:</strong> {{.When}}</p>
{{if .Description}}<p><strong>Design:</strong> {{.Description}}</p>{{end}}
{{if .Price}}<p><strong>Total price:</strong> €{{.Price}}</p>{{end}}
{{if .Deposit}}<p><strong>Deposit:</strong> €{{.Deposit}}</p>{{end}}{{end}}
{{define "studio"}}<p>{{.StudioName}}{{if .StudioAddress}}<br>{{.StudioAddress}}{{end}}{{if .StudioPhone}}<br>{{.StudioPhone}}{{end}}</p>{{end}}
{{define "confirmation"}}<h2>Hi {{.ClientName}},</h2>
<p>your appointment is booked.</p>
{{template "details" .}}
<p>Please arrive a few minutes early and bring a photo ID.</p>
{{template "studio" .}}{{end}}
{{define "reminder"}}<h2>Hi {{.ClientName}},</h2>
<p>a quick reminder of your upcoming appointment.</p>
{{template "details" .}}
<p>Eat beforehand, stay hydrated and avoid alcohol the day before.</p>
{{template "studio" .}}{{end}}
{{define "cancellation"}}<h2>Hi {{.ClientName}},</h2>
<p>your appointment on {{.When}} has been cancelled.</p>
<p>Get in touch with us to find a new date.</p>
{{template "studio" .}}{{end}}`

var templates = template.Must(template.New("email").Parse(layout))

type templateData struct {
	ClientName    string
	When          string
	Description   string
	Price         string
	Deposit       string
	StudioName    string
	StudioAddress string
	StudioPhone   string
}

// Render builds the message for appt using the studio's details. Dates are
// shown in the studio's time zone when it can be loaded.
func Render(tmpl Template, studio model.Studio, appt model.Appointment) (Message, error) {
	subject, ok := subjects[tmpl]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", tmpl)
	}

	when := appt.AppointmentDate
	if loc, err := time.LoadLocation(studio.Timezone); err == nil && studio.Timezone != "" {
		when = when.In(loc)
	}
	data := templateData{
		ClientName:    appt.ClientName,
		When:          when.Format("Monday, 2 January 2006 15:04 MST"),
		Description:   appt.Description,
		StudioName:    studio.Name,
		StudioAddress: studio.Address,
		StudioPhone:   studio.Phone,
	}
	if appt.Price.Valid && !appt.Price.Decimal.IsZero() {
		data.Price = appt.Price.Decimal.StringFixed(2)
	}
	if appt.Deposit.Valid && !appt.Deposit.Decimal.IsZero() {
		data.Deposit = appt.Deposit.Decimal.StringFixed(2)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(tmpl), data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      appt.ClientEmail,
		Subject: fmt.Sprintf(subject, studio.Name),
		HTML:    buf.String(),
	}, nil
}
