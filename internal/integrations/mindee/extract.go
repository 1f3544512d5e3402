package mindee

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"insurance-bot/internal/domain"
)

// payloadSchemaJSON describes the part of a Mindee document response we
// rely on. The prediction fields themselves are optional.
const payloadSchemaJSON = `{
	"type": "object",
	"required": ["document"],
	"properties": {
		"document": {
			"type": "object",
			"required": ["inference"],
			"properties": {
				"inference": {
					"type": "object",
					"required": ["prediction"],
					"properties": {
						"prediction": {"type": "object"}
					}
				}
			}
		}
	}
}`

var payloadSchema = jsonschema.MustCompileString("mindee_payload.json", payloadSchemaJSON)

type payloadEnvelope struct {
	Document struct {
		Inference struct {
			Prediction map[string]json.RawMessage `json:"prediction"`
		} `json:"inference"`
	} `json:"document"`
}

// Extract maps a raw Mindee payload onto the flat record for kind. An empty
// or null payload yields (nil, nil): the document was not recognized. A
// payload of the wrong shape wraps ErrParse.
func Extract(payload []byte, kind domain.DocumentKind) (*domain.Extraction, error) {
	p, ok := products[kind]
	if !ok {
		return nil, fmt.Errorf("mindee: unknown document kind %q", kind)
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, nil
	}

	var generic any
	if err := json.Unmarshal(trimmed, &generic); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", ErrParse, err)
	}
	if err := payloadSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	var env payloadEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: decode prediction: %w", ErrParse, err)
	}
	return p.mapFields(env.Document.Inference.Prediction), nil
}

func mapIdentity(pred map[string]json.RawMessage) *domain.Extraction {
	return &domain.Extraction{
		Kind: domain.DocumentIdentity,
		Identity: &domain.IdentityData{
			Surname:        fieldValue(pred["surnames"]),
			GivenName:      fieldValue(pred["given_names"]),
			DocumentNumber: fieldValue(pred["document_number"]),
			Nationality:    fieldValue(pred["nationality"]),
			BirthDate:      fieldValue(pred["birth_date"]),
			DocumentType:   fieldValue(pred["document_type"]),
			Sex:            fieldValue(pred["sex"]),
			PersonalNumber: fieldValue(pred["personal_number"]),
			CountryOfIssue: fieldValue(pred["country_of_issue"]),
			IssueDate:      fieldValue(pred["issue_date"]),
			ExpirationDate: fieldValue(pred["expiration_date"]),
		},
	}
}

func mapVehicle(pred map[string]json.RawMessage) *domain.Extraction {
	return &domain.Extraction{
		Kind: domain.DocumentVehicle,
		Vehicle: &domain.VehicleData{
			RegistrationNumber:          fieldValue(pred["vehicle_registration_number"]),
			RegistrationDate:            fieldValue(pred["registration_date"]),
			OwnerName:                   fieldValue(pred["owner_name"]),
			VehicleIdentificationNumber: fieldValue(pred["vehicle_identification_number"]),
			Make:                        fieldValue(pred["make"]),
			InsuranceDetails:            listValues(pred["insurance_details"]),
		},
	}
}

type valueField struct {
	Value any `json:"value"`
}

// fieldValue reads a prediction field shaped either as {"value": x} or as a
// list of such objects, whose values are joined with spaces.
func fieldValue(raw json.RawMessage) string {
	return strings.Join(listValues(raw), " ")
}

func listValues(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '{':
		var f valueField
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil
		}
		if s := scalar(f.Value); s != "" {
			return []string{s}
		}
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		var out []string
		for _, it := range items {
			out = append(out, listValues(it)...)
		}
		return out
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if s = strings.TrimSpace(s); s != "" {
			return []string{s}
		}
	}
	return nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
