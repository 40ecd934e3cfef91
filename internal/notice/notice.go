// Package notice serves the employee side of a notice link: viewing the
// notice, opting out of or back into mail, and answering the insurance
// question.
package notice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/store"
)

var (
	// ErrUnknownToken is returned when a notice token matches no employee.
	ErrUnknownToken = errors.New("notice: unknown token")
	// ErrCarrierRequired is returned when coverage is affirmed without a carrier.
	ErrCarrierRequired = errors.New("notice: carrier required when coverage is affirmed")
)

// Page is what the notice link shows an employee.
type Page struct {
	EmployerName        string          `json:"employer_name"`
	FirstName           string          `json:"first_name,omitempty"`
	Email               string          `json:"email"`
	PlanYear            *model.PlanYear `json:"plan_year,omitempty"`
	OptedOut            bool            `json:"opted_out"`
	OptedOutAt          *time.Time      `json:"opted_out_at,omitempty"`
	FirstViewedAt       *time.Time      `json:"first_viewed_at,omitempty"`
	InsuranceCarrier    string          `json:"insurance_carrier,omitempty"`
	InsuranceAffirmedAt *time.Time      `json:"insurance_affirmed_at,omitempty"`
}

// Affirmation is the employee's insurance answer.
type Affirmation struct {
	HasCoverage bool   `json:"has_coverage"`
	Carrier     string `json:"carrier" validate:"max=200"`
}

// Service resolves notice tokens and records every employee action as an
// activity event.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a notice Service.
func NewService(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// View returns the notice page. The first view is stamped once; every view
// is recorded.
func (s *Service) View(ctx context.Context, token string) (*Page, error) {
	emp, err := s.employee(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	first := emp.FirstViewedAt == nil
	if err := s.store.MarkNoticeViewed(ctx, emp.ID, now); err != nil {
		return nil, eris.Wrap(err, "notice: mark viewed")
	}
	if err := s.record(ctx, emp, model.ActivityNoticeViewed, map[string]any{"first_view": first}); err != nil {
		return nil, err
	}
	return s.page(ctx, emp.ID)
}

// OptOut stops notice and reminder mail. Repeated calls keep the original
// timestamp.
func (s *Service) OptOut(ctx context.Context, token string) (*Page, error) {
	emp, err := s.employee(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.store.SetOptedOut(ctx, emp.ID, &now); err != nil {
		return nil, eris.Wrap(err, "notice: opt out")
	}
	if err := s.record(ctx, emp, model.ActivityOptedOut, map[string]any{"already_opted_out": emp.OptedOutAt != nil}); err != nil {
		return nil, err
	}
	zap.L().Info("employee opted out", zap.String("employee_id", emp.ID))
	return s.page(ctx, emp.ID)
}

// OptIn clears a previous opt-out. Only the employee can do this.
func (s *Service) OptIn(ctx context.Context, token string) (*Page, error) {
	emp, err := s.employee(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetOptedOut(ctx, emp.ID, nil); err != nil {
		return nil, eris.Wrap(err, "notice: opt in")
	}
	if err := s.record(ctx, emp, model.ActivityOptedIn, nil); err != nil {
		return nil, err
	}
	return s.page(ctx, emp.ID)
}

// AffirmInsurance stores the employee's insurance answer. A later answer
// replaces an earlier one.
func (s *Service) AffirmInsurance(ctx context.Context, token string, a Affirmation) (*Page, error) {
	carrier := strings.TrimSpace(a.Carrier)
	if a.HasCoverage && carrier == "" {
		return nil, ErrCarrierRequired
	}
	emp, err := s.employee(ctx, token)
	if err != nil {
		return nil, err
	}
	err = s.store.AffirmInsurance(ctx, emp.ID, model.InsuranceAffirmation{
		HasCoverage: a.HasCoverage,
		Carrier:     carrier,
		At:          s.now().UTC(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "notice: affirm insurance")
	}
	detail := map[string]any{"has_coverage": a.HasCoverage}
	if a.HasCoverage {
		detail["carrier"] = carrier
	}
	if err := s.record(ctx, emp, model.ActivityInsuranceAffirmed, detail); err != nil {
		return nil, err
	}
	return s.page(ctx, emp.ID)
}

func (s *Service) employee(ctx context.Context, token string) (*model.Employee, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnknownToken
	}
	emp, err := s.store.EmployeeByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownToken
	}
	return emp, eris.Wrap(err, "notice: lookup token")
}

func (s *Service) record(ctx context.Context, emp *model.Employee, kind model.ActivityKind, detail map[string]any) error {
	err := s.store.RecordActivity(ctx, model.ActivityEvent{
		EmployerID: emp.EmployerID,
		EmployeeID: emp.ID,
		Kind:       kind,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	})
	return eris.Wrapf(err, "notice: record %s", kind)
}

func (s *Service) page(ctx context.Context, employeeID string) (*Page, error) {
	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, eris.Wrap(err, "notice: reload employee")
	}
	employer, err := s.store.GetEmployer(ctx, emp.EmployerID)
	if err != nil {
		return nil, eris.Wrap(err, "notice: load employer")
	}
	py, err := s.store.ActivePlanYear(ctx, emp.EmployerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "notice: active plan year")
	}
	return &Page{
		EmployerName:        employer.Name,
		FirstName:           model.Deref(emp.FirstName),
		Email:               emp.Email,
		PlanYear:            py,
		OptedOut:            emp.OptedOutAt != nil,
		OptedOutAt:          emp.OptedOutAt,
		FirstViewedAt:       emp.FirstViewedAt,
		InsuranceCarrier:    model.Deref(emp.InsuranceCarrier),
		InsuranceAffirmedAt: emp.InsuranceAffirmedAt,
	}, nil
}
