package domain

import (
	"strings"
	"time"
)

type Stage string

const (
	StageStart                   Stage = "start"
	StageAwaitingIdentityPhoto   Stage = "awaiting_identity_photo"
	StageAwaitingIdentityConfirm Stage = "awaiting_identity_confirm"
	StageAwaitingManualIdentity  Stage = "awaiting_manual_identity"
	StageAwaitingVehiclePhoto1   Stage = "awaiting_vehicle_photo_1"
	StageAwaitingVehiclePhoto2   Stage = "awaiting_vehicle_photo_2"
	StageAwaitingManualVehicle   Stage = "awaiting_manual_vehicle"
	StageAwaitingVehicleConfirm  Stage = "awaiting_vehicle_confirm"
	StageAwaitingAgreement       Stage = "awaiting_agreement"
	StageEnd                     Stage = "end"
)

// ConversationRecord is the mutable state of one chat session.
type ConversationRecord struct {
	SessionID string        `json:"session_id"`
	ChatID    int64         `json:"chat_id"`
	Stage     Stage         `json:"stage"`
	Identity  *IdentityData `json:"identity,omitempty"`
	Vehicle   *VehicleData  `json:"vehicle,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewConversationRecord returns an empty record positioned at StageStart.
func NewConversationRecord(sessionID string, chatID int64) *ConversationRecord {
	return &ConversationRecord{
		SessionID: sessionID,
		ChatID:    chatID,
		Stage:     StageStart,
		UpdatedAt: time.Now().UTC(),
	}
}

// Reset drops all collected data and rewinds to StageStart.
func (r *ConversationRecord) Reset() {
	r.Identity = nil
	r.Vehicle = nil
	r.Stage = StageStart
}

// IdentityData holds the fields read from an identity document.
type IdentityData struct {
	Surname        string `json:"surname"`
	GivenName      string `json:"given_name"`
	DocumentNumber string `json:"document_number"`
	Nationality    string `json:"nationality"`
	BirthDate      string `json:"birth_date"`

	LinkedVehicleDocumentNumber string `json:"linked_vehicle_document_number,omitempty"`

	DocumentType   string `json:"document_type,omitempty"`
	Sex            string `json:"sex,omitempty"`
	PersonalNumber string `json:"personal_number,omitempty"`
	CountryOfIssue string `json:"country_of_issue,omitempty"`
	IssueDate      string `json:"issue_date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// Empty reports whether none of the displayed identity fields is set.
func (d *IdentityData) Empty() bool {
	if d == nil {
		return true
	}
	return d.Surname == "" && d.GivenName == "" && d.DocumentNumber == "" &&
		d.Nationality == "" && d.BirthDate == ""
}

// FullName returns "given surname", trimmed.
func (d *IdentityData) FullName() string {
	if d == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(d.GivenName) + " " + strings.TrimSpace(d.Surname))
}

// VehicleData holds the fields read from a vehicle registration document.
type VehicleData struct {
	RegistrationNumber          string   `json:"registration_number,omitempty"`
	RegistrationDate            string   `json:"registration_date,omitempty"`
	OwnerName                   string   `json:"owner_name,omitempty"`
	VehicleIdentificationNumber string   `json:"vehicle_identification_number,omitempty"`
	Make                        string   `json:"make,omitempty"`
	InsuranceDetails            []string `json:"insurance_details,omitempty"`
}

func (v *VehicleData) Empty() bool {
	if v == nil {
		return true
	}
	return v.RegistrationNumber == "" && v.RegistrationDate == "" && v.OwnerName == "" &&
		v.VehicleIdentificationNumber == "" && v.Make == "" && len(v.InsuranceDetails) == 0
}

// Merge copies every field that is set in other over v. Fields other leaves
// empty keep their current value.
func (v *VehicleData) Merge(other *VehicleData) {
	if other == nil {
		return
	}
	if other.RegistrationNumber != "" {
		v.RegistrationNumber = other.RegistrationNumber
	}
	if other.RegistrationDate != "" {
		v.RegistrationDate = other.RegistrationDate
	}
	if other.OwnerName != "" {
		v.OwnerName = other.OwnerName
	}
	if other.VehicleIdentificationNumber != "" {
		v.VehicleIdentificationNumber = other.VehicleIdentificationNumber
	}
	if other.Make != "" {
		v.Make = other.Make
	}
	if len(other.InsuranceDetails) > 0 {
		v.InsuranceDetails = append([]string(nil), other.InsuranceDetails...)
	}
}

// EnsureOwner fills OwnerName from the identity holder when it is absent.
func (v *VehicleData) EnsureOwner(id *IdentityData) {
	if v.OwnerName != "" {
		return
	}
	v.OwnerName = id.FullName()
}

type DocumentKind string

const (
	DocumentIdentity DocumentKind = "identity"
	DocumentVehicle  DocumentKind = "vehicle"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ExtractionJob tracks one upload → poll → fetch sequence.
type ExtractionJob struct {
	JobID      string
	Kind       DocumentKind
	Status     JobStatus
	DocumentID string
}

// Extraction is the flat result of mapping a provider prediction. Exactly
// one of Identity or Vehicle is set, matching Kind.
type Extraction struct {
	Kind     DocumentKind
	Identity *IdentityData
	Vehicle  *VehicleData
}

// Empty reports whether the extraction carries no usable field.
func (e *Extraction) Empty() bool {
	if e == nil {
		return true
	}
	switch e.Kind {
	case DocumentIdentity:
		return e.Identity.Empty()
	case DocumentVehicle:
		return e.Vehicle.Empty()
	default:
		return true
	}
}
