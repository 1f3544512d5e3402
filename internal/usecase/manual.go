package usecase

import (
	"fmt"
	"strings"

	"insurance-bot/internal/domain"
)

const (
	identityLines = 5
	vehicleLines  = 4
)

// manualLines splits free text into trimmed, non-blank lines.
func manualLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// parseManualIdentity reads surname, given name, document number,
// nationality and birth date, one per line.
func parseManualIdentity(text string) (*domain.IdentityData, error) {
	lines := manualLines(text)
	if len(lines) != identityLines {
		return nil, newError(ErrorValidation, "identity_line_count",
			fmt.Errorf("want %d lines, got %d", identityLines, len(lines)))
	}
	return &domain.IdentityData{
		Surname:        lines[0],
		GivenName:      lines[1],
		DocumentNumber: lines[2],
		Nationality:    lines[3],
		BirthDate:      lines[4],
	}, nil
}

// parseManualVehicle reads registration number, registration date, VIN
// and make, one per line.
func parseManualVehicle(text string) (*domain.VehicleData, error) {
	lines := manualLines(text)
	if len(lines) != vehicleLines {
		return nil, newError(ErrorValidation, "vehicle_line_count",
			fmt.Errorf("want %d lines, got %d", vehicleLines, len(lines)))
	}
	return &domain.VehicleData{
		RegistrationNumber:          lines[0],
		RegistrationDate:            lines[1],
		VehicleIdentificationNumber: lines[2],
		Make:                        lines[3],
		InsuranceDetails:            []string{},
	}, nil
}
