package services

import (
	"math"
	"sort"
	"strings"

	"github.com/adventuretogether/booking-backend/internal/config"
	"github.com/adventuretogether/booking-backend/internal/models"
	"github.com/adventuretogether/booking-backend/pkg/validator"
)

// DefaultInsuranceType is used when a request names no plan
const DefaultInsuranceType = "none"

// PriceQuote is the price of a booking at preparation time
type PriceQuote struct {
	TripCost        float64
	InsuranceType   string
	InsuranceAmount float64
	TotalPrice      float64
}

// PricingService prices bookings and their insurance premium
type PricingService struct {
	plans map[string]config.InsurancePlan
}

// NewPricingService creates a pricing service over the given plans
func NewPricingService(plans map[string]config.InsurancePlan) *PricingService {
	if len(plans) == 0 {
		plans = config.DefaultInsurancePlans()
	}
	return &PricingService{plans: plans}
}

// ValidatePlan returns a validation error on insurance_type when the plan is unknown.
// Empty means the default plan.
func (s *PricingService) ValidatePlan(insuranceType string) error {
	if _, ok := s.plans[normalizePlanName(insuranceType)]; ok {
		return nil
	}
	var errs validator.FieldErrors
	errs.Add("insurance_type", "must be one of: "+strings.Join(s.PlanNames(), ", "))
	return &models.ValidationError{Fields: errs}
}

// Quote prices n participants at pricePerParticipant with the named insurance plan
func (s *PricingService) Quote(pricePerParticipant float64, participants int, insuranceType string) (*PriceQuote, error) {
	if err := s.ValidatePlan(insuranceType); err != nil {
		return nil, err
	}
	name := normalizePlanName(insuranceType)
	plan := s.plans[name]

	tripCost := roundCents(pricePerParticipant * float64(participants))
	premium := roundCents(tripCost*plan.PercentOfTrip/100 + plan.PerParticipantFee*float64(participants))

	return &PriceQuote{
		TripCost:        tripCost,
		InsuranceType:   name,
		InsuranceAmount: premium,
		TotalPrice:      roundCents(tripCost + premium),
	}, nil
}

// PlanNames returns the known plan names, sorted
func (s *PricingService) PlanNames() []string {
	names := make([]string, 0, len(s.plans))
	for name := range s.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizePlanName(insuranceType string) string {
	name := strings.ToLower(strings.TrimSpace(insuranceType))
	if name == "" {
		return DefaultInsuranceType
	}
	return name
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ToMinorUnits converts an amount to the gateway's integer minor units (cents)
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts gateway minor units back to an amount
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
