package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// InsurancePlan describes how the insurance premium of a booking is priced
type InsurancePlan struct {
	Name              string  `yaml:"name"`
	Description       string  `yaml:"description"`
	PercentOfTrip     float64 `yaml:"percent_of_trip"`
	PerParticipantFee float64 `yaml:"per_participant_fee"`
}

type insurancePlansFile struct {
	Plans []InsurancePlan `yaml:"plans"`
}

// DefaultInsurancePlans returns the built-in plans.
// "basic" covers 10% of the trip cost; cancellation adds 5%; luggage adds a flat fee per participant.
func DefaultInsurancePlans() map[string]InsurancePlan {
	return map[string]InsurancePlan{
		"none":         {Name: "none", Description: "No insurance"},
		"basic":        {Name: "basic", Description: "Medical and assistance", PercentOfTrip: 10},
		"cancellation": {Name: "cancellation", Description: "Basic plus cancellation", PercentOfTrip: 15},
		"luggage":      {Name: "luggage", Description: "Basic plus luggage", PercentOfTrip: 10, PerParticipantFee: 20},
		"full":         {Name: "full", Description: "Basic plus cancellation and luggage", PercentOfTrip: 15, PerParticipantFee: 20},
	}
}

// LoadInsurancePlans returns the built-in plans overlaid with the plans in path.
// An empty path returns the defaults.
func LoadInsurancePlans(path string) (map[string]InsurancePlan, error) {
	plans := DefaultInsurancePlans()
	if path == "" {
		return plans, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read insurance plans: %w", err)
	}

	var file insurancePlansFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse insurance plans: %w", err)
	}

	for _, plan := range file.Plans {
		name := strings.ToLower(strings.TrimSpace(plan.Name))
		if name == "" {
			return nil, fmt.Errorf("insurance plan without a name in %s", path)
		}
		if plan.PercentOfTrip < 0 || plan.PerParticipantFee < 0 {
			return nil, fmt.Errorf("insurance plan %s has a negative price component", name)
		}
		plan.Name = name
		plans[name] = plan
	}

	return plans, nil
}
