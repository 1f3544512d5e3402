package mindee

import (
	"testing"

	"github.com/stretchr/testify/require"

	"insurance-bot/internal/domain"
)

const identityPayload = `{
	"document": {
		"id": "doc-1",
		"inference": {
			"prediction": {
				"document_type": {"value": "PASSPORT"},
				"document_number": {"value": "КМ123456"},
				"surnames": [{"value": "Іванов"}],
				"given_names": [{"value": "Іван"}, {"value": "Петрович"}],
				"sex": {"value": "M"},
				"birth_date": {"value": "1990-05-15"},
				"nationality": {"value": "Україна"},
				"personal_number": {"value": null},
				"expiration_date": {"value": "2030-01-01"}
			}
		}
	}
}`

const vehiclePayload = `{
	"document": {
		"inference": {
			"prediction": {
				"vehicle_registration_number": {"value": "АА1234ВВ"},
				"registration_date": {"value": "2020-01-15"},
				"make": {"value": null},
				"insurance_details": [{"value": "policy A"}, {"value": ""}, {"value": "policy B"}]
			}
		}
	}
}`

func TestExtract_Identity(t *testing.T) {
	ext, err := Extract([]byte(identityPayload), domain.DocumentIdentity)
	require.NoError(t, err)
	require.False(t, ext.Empty())
	require.Equal(t, domain.DocumentIdentity, ext.Kind)
	require.Nil(t, ext.Vehicle)

	id := ext.Identity
	require.Equal(t, "Іванов", id.Surname)
	require.Equal(t, "Іван Петрович", id.GivenName)
	require.Equal(t, "КМ123456", id.DocumentNumber)
	require.Equal(t, "Україна", id.Nationality)
	require.Equal(t, "1990-05-15", id.BirthDate)
	require.Equal(t, "PASSPORT", id.DocumentType)
	require.Equal(t, "M", id.Sex)
	require.Empty(t, id.PersonalNumber)
	require.Equal(t, "2030-01-01", id.ExpirationDate)
}

func TestExtract_Vehicle(t *testing.T) {
	ext, err := Extract([]byte(vehiclePayload), domain.DocumentVehicle)
	require.NoError(t, err)
	v := ext.Vehicle
	require.Equal(t, "АА1234ВВ", v.RegistrationNumber)
	require.Equal(t, "2020-01-15", v.RegistrationDate)
	require.Empty(t, v.Make)
	require.Empty(t, v.OwnerName)
	require.Equal(t, []string{"policy A", "policy B"}, v.InsuranceDetails)
}

func TestExtract_EmptyPayloadIsNotRecognized(t *testing.T) {
	for _, p := range []string{"", "  ", "null", "{}"} {
		ext, err := Extract([]byte(p), domain.DocumentIdentity)
		require.NoError(t, err, "payload=%q", p)
		require.Nil(t, ext, "payload=%q", p)
	}
}

func TestExtract_EmptyPredictionYieldsEmptyRecord(t *testing.T) {
	ext, err := Extract([]byte(`{"document":{"inference":{"prediction":{}}}}`), domain.DocumentVehicle)
	require.NoError(t, err)
	require.NotNil(t, ext)
	require.True(t, ext.Empty())
}

func TestExtract_UnexpectedShape(t *testing.T) {
	cases := []string{
		`not-json`,
		`{"job":{"id":"x"}}`,
		`{"document":{"inference":{}}}`,
		`{"document":{"inference":{"prediction":[]}}}`,
	}
	for _, p := range cases {
		_, err := Extract([]byte(p), domain.DocumentIdentity)
		require.ErrorIs(t, err, ErrParse, "payload=%q", p)
	}
}

func TestExtract_UnknownKind(t *testing.T) {
	_, err := Extract([]byte(identityPayload), domain.DocumentKind("boat"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown document kind")
}

func TestFieldValue_Shapes(t *testing.T) {
	require.Equal(t, "x", fieldValue([]byte(`{"value":"x"}`)))
	require.Equal(t, "a b", fieldValue([]byte(`[{"value":"a"},{"value":"b"}]`)))
	require.Equal(t, "42", fieldValue([]byte(`{"value":42}`)))
	require.Equal(t, "plain", fieldValue([]byte(`"plain"`)))
	require.Empty(t, fieldValue([]byte(`{"value":null}`)))
	require.Empty(t, fieldValue(nil))
	require.Empty(t, fieldValue([]byte(`{"value":`)))
}
