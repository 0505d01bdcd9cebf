package policy

import (
	"fmt"

	"github.com/secmail/secmaild/internal/config"
	"github.com/secmail/secmaild/internal/db/repository"
)

// Validator validates certificate issuance requests against policy
type Validator struct {
	config *config.Config
	certs  *repository.CertRepository
}

// NewValidator creates a new policy validator
func NewValidator(cfg *config.Config, certs *repository.CertRepository) *Validator {
	return &Validator{
		config: cfg,
		certs:  certs,
	}
}

// ValidateIssueRequest validates a certificate issuance request for a
// subject email against the per-day issuance cap.
func (v *Validator) ValidateIssueRequest(subjectEmail string) error {
	count, err := v.certs.CountIssuedToday(subjectEmail)
	if err != nil {
		return fmt.Errorf("failed to check daily limit: %w", err)
	}

	if count >= v.config.Policy.MaxCertsPerDay {
		return fmt.Errorf("daily certificate limit exceeded (%d/%d)", count, v.config.Policy.MaxCertsPerDay)
	}

	return nil
}
