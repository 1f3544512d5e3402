package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVehicleData_MergeDisjointKeepsFirstPass(t *testing.T) {
	v := &VehicleData{RegistrationNumber: "АА1234ВВ", RegistrationDate: "2020-01-15"}
	v.Merge(&VehicleData{Make: "Toyota Camry", VehicleIdentificationNumber: "JT2BF22K3W0123456"})

	require.Equal(t, "АА1234ВВ", v.RegistrationNumber)
	require.Equal(t, "2020-01-15", v.RegistrationDate)
	require.Equal(t, "Toyota Camry", v.Make)
	require.Equal(t, "JT2BF22K3W0123456", v.VehicleIdentificationNumber)
}

func TestVehicleData_MergeOverwritesSharedKeys(t *testing.T) {
	v := &VehicleData{RegistrationNumber: "OLD", Make: "Ford"}
	v.Merge(&VehicleData{RegistrationNumber: "NEW", InsuranceDetails: []string{"policy-1"}})

	require.Equal(t, "NEW", v.RegistrationNumber)
	require.Equal(t, "Ford", v.Make)
	require.Equal(t, []string{"policy-1"}, v.InsuranceDetails)
}

func TestVehicleData_MergeIsIdempotent(t *testing.T) {
	second := &VehicleData{Make: "Toyota Camry"}
	v := &VehicleData{RegistrationNumber: "АА1234ВВ"}
	v.Merge(second)
	once := *v
	v.Merge(second)
	require.Equal(t, once, *v)
}

func TestVehicleData_EnsureOwner(t *testing.T) {
	id := &IdentityData{Surname: "Іванов", GivenName: "Іван"}

	v := &VehicleData{}
	v.EnsureOwner(id)
	require.Equal(t, "Іван Іванов", v.OwnerName)

	v = &VehicleData{OwnerName: "Петро Петренко"}
	v.EnsureOwner(id)
	require.Equal(t, "Петро Петренко", v.OwnerName)

	v = &VehicleData{}
	v.EnsureOwner(nil)
	require.Empty(t, v.OwnerName)
}

func TestExtraction_Empty(t *testing.T) {
	var nilExt *Extraction
	require.True(t, nilExt.Empty())
	require.True(t, (&Extraction{Kind: DocumentIdentity, Identity: &IdentityData{}}).Empty())
	require.True(t, (&Extraction{Kind: DocumentVehicle}).Empty())
	require.False(t, (&Extraction{Kind: DocumentVehicle, Vehicle: &VehicleData{Make: "Audi"}}).Empty())
	require.False(t, (&Extraction{Kind: DocumentIdentity, Identity: &IdentityData{Surname: "Іванов"}}).Empty())
}

func TestConversationRecord_Reset(t *testing.T) {
	r := NewConversationRecord("s-1", 42)
	r.Stage = StageAwaitingAgreement
	r.Identity = &IdentityData{Surname: "x"}
	r.Vehicle = &VehicleData{Make: "y"}
	r.Reset()
	require.Equal(t, StageStart, r.Stage)
	require.Nil(t, r.Identity)
	require.Nil(t, r.Vehicle)
	require.Equal(t, int64(42), r.ChatID)
}
