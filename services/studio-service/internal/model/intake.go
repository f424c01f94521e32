package model

import "time"

// Question is the stable key of one health questionnaire item. The keys are
// also the anamnesis_forms column names.
type Question string

const (
	QPregnant                 Question = "is_pregnant"
	QAlcoholOrDrugs           Question = "has_consumed_alcohol_or_drugs"
	QAllergies                Question = "has_allergies"
	QTattooedBefore           Question = "has_been_tattooed_before"
	QHeavyTreatment           Question = "is_undergoing_heavy_treatment"
	QIodineAllergy            Question = "is_allergic_to_iodine"
	QInfectionHistory         Question = "has_history_of_infection"
	QActiveSkinDisease        Question = "has_active_skin_disease"
	QAutoimmuneDisease        Question = "has_autoimmune_disease"
	QImmunodeficiency         Question = "has_immunodeficiency_disease"
	QAnticoagulants           Question = "takes_anticoagulants_or_has_cardiovascular_issues"
	QPacemaker                Question = "has_pacemaker"
	QEpilepsy                 Question = "has_epilepsy"
	QDiabetes                 Question = "has_diabetes"
	QHerpes                   Question = "has_herpes"
	QAsthma                   Question = "has_asthma"
	QConjunctivitis           Question = "has_conjunctivitis"
	QAccutane                 Question = "is_on_accutane_treatment"
	QAspirinOrAntiInflamatory Question = "has_taken_aspirin_or_anti_inflammatories"
	QWoundHealing             Question = "has_wound_healing_issues"
)

// Questions is the questionnaire in form order.
var Questions = []Question{
	QPregnant,
	QAlcoholOrDrugs,
	QAllergies,
	QTattooedBefore,
	QHeavyTreatment,
	QIodineAllergy,
	QInfectionHistory,
	QActiveSkinDisease,
	QAutoimmuneDisease,
	QImmunodeficiency,
	QAnticoagulants,
	QPacemaker,
	QEpilepsy,
	QDiabetes,
	QHerpes,
	QAsthma,
	QConjunctivitis,
	QAccutane,
	QAspirinOrAntiInflamatory,
	QWoundHealing,
}

// DetailQuestions maps each detail-bearing question to its details column.
var DetailQuestions = map[Question]string{
	QAllergies:      "allergies_details",
	QTattooedBefore: "tattooed_area_details",
	QHeavyTreatment: "heavy_treatment_details",
	QAnticoagulants: "cardiovascular_details",
}

// IntakeForm is the signed anamnesis record. Details holds an entry only for
// detail-bearing questions answered true.
type IntakeForm struct {
	AppointmentID         string
	Answers               map[Question]bool
	Details               map[Question]string
	Place                 string
	SignatureDate         time.Time
	ClientSignature       string
	PractitionerSignature string
	CreatedAt             time.Time
}
