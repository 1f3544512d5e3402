package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"insurance-bot/internal/domain"
)

func TestParseManualIdentity(t *testing.T) {
	id, err := parseManualIdentity("Іванов\r\nІван\r\n\r\nКМ123456\r\n  Україна  \r\n1990-05-15")
	require.NoError(t, err)
	require.Equal(t, &domain.IdentityData{
		Surname:        "Іванов",
		GivenName:      "Іван",
		DocumentNumber: "КМ123456",
		Nationality:    "Україна",
		BirthDate:      "1990-05-15",
	}, id)

	for _, in := range []string{"", "Іванов\nІван\nКМ123456\nУкраїна", "a\nb\nc\nd\ne\nf"} {
		_, err := parseManualIdentity(in)
		var ue *Error
		require.ErrorAs(t, err, &ue, in)
		require.Equal(t, ErrorValidation, ue.Code)
		require.Equal(t, "identity_line_count", ue.Reason)
	}
}

func TestParseManualVehicle(t *testing.T) {
	v, err := parseManualVehicle("АА1234ВВ\n2020-01-15\nJT2BF22K3W0123456\nToyota Camry\n\n")
	require.NoError(t, err)
	require.Equal(t, "АА1234ВВ", v.RegistrationNumber)
	require.Equal(t, "2020-01-15", v.RegistrationDate)
	require.Equal(t, "JT2BF22K3W0123456", v.VehicleIdentificationNumber)
	require.Equal(t, "Toyota Camry", v.Make)
	require.Empty(t, v.OwnerName)
	require.NotNil(t, v.InsuranceDetails)

	_, err = parseManualVehicle("АА1234ВВ\n2020-01-15\nJT2BF22K3W0123456")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "vehicle_line_count", ue.Reason)
}
