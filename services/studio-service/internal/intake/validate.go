// Package intake validates the check-in questionnaire and signatures.
package intake

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/inkform/inkform/services/studio-service/internal/model"
)

type Code string

const (
	MissingAnswer    Code = "missing_answer"
	MissingSignature Code = "missing_signature"
	MissingPlace     Code = "missing_place"
)

type ValidationError struct {
	Code  Code
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Field)
}

// Answer is one questionnaire answer. A nil Answer in RawAnswers means the
// question was left unanswered.
type Answer bool

// UnmarshalJSON accepts JSON booleans and the web form's "yes"/"no".
func (a *Answer) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*a = Answer(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("answer must be a boolean or \"yes\"/\"no\"")
	}
	v, err := ParseAnswer(s)
	if err != nil {
		return err
	}
	*a = *v
	return nil
}

func ParseAnswer(s string) (*Answer, error) {
	var v Answer
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true":
		v = true
	case "no", "false":
		v = false
	default:
		return nil, fmt.Errorf("unrecognised answer %q", s)
	}
	return &v, nil
}

type RawAnswers struct {
	Answers map[model.Question]*Answer
	Details map[model.Question]string
}

// Validate checks a submission and returns the form ready to store. now
// becomes the signature date; a client supplied date is never used.
func Validate(raw RawAnswers, clientSignature, practitionerSignature, place string, now time.Time) (model.IntakeForm, error) {
	form := model.IntakeForm{
		Answers: make(map[model.Question]bool, len(model.Questions)),
		Details: map[model.Question]string{},
	}

	for _, q := range model.Questions {
		ans, ok := raw.Answers[q]
		if !ok || ans == nil {
			return model.IntakeForm{}, &ValidationError{Code: MissingAnswer, Field: string(q)}
		}
		form.Answers[q] = bool(*ans)
		if _, detailed := model.DetailQuestions[q]; detailed && bool(*ans) {
			form.Details[q] = raw.Details[q]
		}
	}

	if !hasStrokes(clientSignature) {
		return model.IntakeForm{}, &ValidationError{Code: MissingSignature, Field: "client"}
	}
	if !hasStrokes(practitionerSignature) {
		return model.IntakeForm{}, &ValidationError{Code: MissingSignature, Field: "practitioner"}
	}

	place = strings.TrimSpace(place)
	if place == "" {
		return model.IntakeForm{}, &ValidationError{Code: MissingPlace, Field: "place"}
	}

	form.Place = place
	form.ClientSignature = clientSignature
	form.PractitionerSignature = practitionerSignature
	form.SignatureDate = now.UTC()
	return form, nil
}

// hasStrokes rejects blank signatures and data URLs without a payload.
func hasStrokes(sig string) bool {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return false
	}
	if !strings.HasPrefix(sig, "data:") {
		return true
	}
	comma := strings.IndexByte(sig, ',')
	return comma >= 0 && strings.TrimSpace(sig[comma+1:]) != ""
}
