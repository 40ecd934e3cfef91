package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/metrics"
	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/resilience"
	"github.com/sells-group/benefits-notice/internal/store"
)

// MailerConfig paces bulk sends.
type MailerConfig struct {
	RatePerSecond float64
	Concurrency   int
	Attempts      int
}

// Recipient is one addressee of a bulk send.
type Recipient struct {
	EmployeeID string `json:"employee_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	PortalURL  string `json:"portal_url,omitempty"`
}

// Failure is a recipient whose send failed after retries.
type Failure struct {
	EmployeeID string `json:"employee_id"`
	Email      string `json:"email"`
	Error      string `json:"error"`
}

// Report is the outcome of a bulk send. A preview lists Recipients and
// sends nothing.
type Report struct {
	Kind             string      `json:"kind"`
	Preview          bool        `json:"preview"`
	Sender           string      `json:"sender,omitempty"`
	Provider         string      `json:"provider,omitempty"`
	Attempted        int         `json:"attempted"`
	Sent             int         `json:"sent"`
	Failed           int         `json:"failed"`
	MissingLinkCount int         `json:"missing_link_count"`
	SkippedOptedOut  int         `json:"skipped_opted_out"`
	Recipients       []Recipient `json:"recipients,omitempty"`
	Failures         []Failure   `json:"failures,omitempty"`
}

// Mailer runs notice and reminder sends for an employer.
type Mailer struct {
	store       store.Store
	engine      *compliance.Engine
	templates   *Templates
	tokens      *TokenManager
	dispatchers map[model.MailProvider]Dispatcher
	settings    Settings
	limiter     *rate.Limiter
	concurrency int
	retry       resilience.RetryConfig
	now         func() time.Time
}

// NewMailer wires a Mailer. A dispatcher registered for model.ProviderSMTP
// enables the relay fallback.
func NewMailer(
	st store.Store,
	eng *compliance.Engine,
	tpl *Templates,
	tokens *TokenManager,
	dispatchers map[model.MailProvider]Dispatcher,
	settings Settings,
	cfg MailerConfig,
) *Mailer {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Mailer{
		store:       st,
		engine:      eng,
		templates:   tpl,
		tokens:      tokens,
		dispatchers: dispatchers,
		settings:    settings,
		limiter:     rate.NewLimiter(limit, burst),
		concurrency: concurrency,
		retry:       resilience.SendRetryConfig(cfg.Attempts, "mail"),
		now:         time.Now,
	}
}

type job struct {
	employee  model.Employee
	recipient Recipient
}

// SendReminders mails every reminder-eligible employee of the latest
// import run. Employees who opted out since the import are skipped.
func (m *Mailer) SendReminders(ctx context.Context, employerID, planYearID string, preview bool) (*Report, error) {
	tbl, err := m.engine.Table(ctx, employerID, planYearID)
	if err != nil {
		return nil, err
	}
	employees, err := m.employeesByID(ctx, employerID)
	if err != nil {
		return nil, err
	}

	rem := compliance.FilterReminders(tbl.Rows)
	report := &Report{Kind: KindReminder, Preview: preview, MissingLinkCount: rem.MissingLinkCount}
	var jobs []job
	for _, r := range rem.Recipients {
		emp, ok := employees[r.EmployeeID]
		if !ok {
			continue
		}
		if emp.OptedOutAt != nil {
			report.SkippedOptedOut++
			continue
		}
		jobs = append(jobs, job{employee: emp, recipient: Recipient{
			EmployeeID: emp.ID,
			Email:      emp.Email,
			Name:       emp.DisplayName(),
			PortalURL:  model.Deref(r.PortalURL),
		}})
	}

	return m.send(ctx, employerID, &tbl.PlanYear, jobs, report)
}

// SendNotices mails the notice link to every eligible employee who has not
// opted out.
func (m *Mailer) SendNotices(ctx context.Context, employerID string, preview bool) (*Report, error) {
	employees, err := m.store.ListEmployees(ctx, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "notify: list employees")
	}
	py, err := m.store.ActivePlanYear(ctx, employerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "notify: active plan year")
	}

	report := &Report{Kind: KindNotice, Preview: preview}
	var jobs []job
	for _, emp := range employees {
		if !emp.Eligible {
			continue
		}
		if emp.OptedOutAt != nil {
			report.SkippedOptedOut++
			continue
		}
		jobs = append(jobs, job{employee: emp, recipient: Recipient{
			EmployeeID: emp.ID,
			Email:      emp.Email,
			Name:       emp.DisplayName(),
		}})
	}

	return m.send(ctx, employerID, py, jobs, report)
}

func (m *Mailer) send(ctx context.Context, employerID string, py *model.PlanYear, jobs []job, report *Report) (*Report, error) {
	if report.Preview {
		for _, j := range jobs {
			report.Recipients = append(report.Recipients, j.recipient)
		}
		return report, nil
	}
	if len(jobs) == 0 {
		return report, nil
	}

	employer, err := m.store.GetEmployer(ctx, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "notify: load employer")
	}
	sender, err := m.sender(ctx, employerID)
	if err != nil {
		return nil, err
	}
	dispatcher, ok := m.dispatchers[sender.Provider]
	if !ok {
		return nil, eris.Wrapf(ErrNoSender, "notify: no dispatcher for %s", sender.Provider)
	}
	report.Sender = sender.Email
	report.Provider = string(sender.Provider)

	var planYearEnd string
	if py != nil {
		planYearEnd = py.EndDate.Format("January 2, 2006")
	}

	var mu sync.Mutex
	fail := func(j job, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		report.Failures = append(report.Failures, Failure{EmployeeID: j.employee.ID, Email: j.employee.Email, Error: err.Error()})
		metrics.EmailsTotal.WithLabelValues(report.Kind, report.Provider, "failed").Inc()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, j := range jobs {
		msg, err := m.templates.Render(report.Kind, TemplateData{
			EmployerName: employer.Name,
			FirstName:    model.Deref(j.employee.FirstName),
			Name:         j.recipient.Name,
			Email:        j.employee.Email,
			NoticeURL:    m.settings.NoticeURL(j.employee.Token),
			PortalURL:    j.recipient.PortalURL,
			PlanYearEnd:  planYearEnd,
		})
		if err != nil {
			report.Attempted++
			fail(j, err)
			continue
		}
		msg.To = j.employee.Email
		msg.ToName = j.recipient.Name

		if err := m.limiter.Wait(gctx); err != nil {
			break
		}
		report.Attempted++
		g.Go(func() error {
			err := resilience.Do(gctx, m.retry, func(ctx context.Context) error {
				return dispatcher.Send(ctx, sender, msg)
			})
			if err != nil {
				zap.L().Error("mail send failed",
					zap.String("kind", report.Kind),
					zap.String("employee_id", j.employee.ID),
					zap.Error(err),
				)
				fail(j, err)
				return nil
			}
			mu.Lock()
			report.Sent++
			mu.Unlock()
			metrics.EmailsTotal.WithLabelValues(report.Kind, report.Provider, "sent").Inc()
			m.recordSent(gctx, report.Kind, py, j.employee, sender)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("bulk send complete",
		zap.String("kind", report.Kind),
		zap.String("employer_id", employerID),
		zap.String("sender", report.Sender),
		zap.Int("attempted", report.Attempted),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "notify: send interrupted")
	}
	return report, nil
}

// recordSent stamps a successful send. Failures are logged, since the
// email already went out.
func (m *Mailer) recordSent(ctx context.Context, kind string, py *model.PlanYear, emp model.Employee, sender Sender) {
	now := m.now().UTC()
	activity := model.ActivityNoticeSent
	detail := map[string]any{"sender": sender.Email, "provider": string(sender.Provider)}
	if kind == KindReminder && py != nil {
		activity = model.ActivityReminderSent
		detail["plan_year_id"] = py.ID
		if err := m.store.MarkReminderSent(ctx, emp.ID, py.ID, now); err != nil {
			zap.L().Warn("mark reminder sent", zap.String("employee_id", emp.ID), zap.Error(err))
		}
	}
	err := m.store.RecordActivity(ctx, model.ActivityEvent{
		EmployerID: emp.EmployerID,
		EmployeeID: emp.ID,
		Kind:       activity,
		Detail:     detail,
		CreatedAt:  now,
	})
	if err != nil {
		zap.L().Warn("record send activity", zap.String("employee_id", emp.ID), zap.Error(err))
	}
}

// sender selects the sending mailbox and readies its token. Accounts whose
// refresh fails are flagged and selection moves on to the next candidate.
func (m *Mailer) sender(ctx context.Context, employerID string) (Sender, error) {
	_, smtp := m.dispatchers[model.ProviderSMTP]
	for {
		employerAccounts, err := m.store.ListMailAccounts(ctx, employerID)
		if err != nil {
			return Sender{}, eris.Wrap(err, "notify: list employer mail accounts")
		}
		adminAccounts, err := m.store.ListMailAccounts(ctx, "")
		if err != nil {
			return Sender{}, eris.Wrap(err, "notify: list admin mail accounts")
		}

		s, err := SelectSender(employerAccounts, adminAccounts, m.settings, smtp)
		if err != nil {
			return Sender{}, eris.Wrapf(err, "notify: employer %s", employerID)
		}
		if s.Account == nil {
			return s, nil
		}

		tok, err := m.tokens.Token(ctx, s.Account)
		if errors.Is(err, ErrAccountNeedsReconnect) {
			continue
		}
		if err != nil {
			return Sender{}, err
		}
		s.Token = tok
		return s, nil
	}
}

func (m *Mailer) employeesByID(ctx context.Context, employerID string) (map[string]model.Employee, error) {
	list, err := m.store.ListEmployees(ctx, employerID)
	if err != nil {
		return nil, eris.Wrap(err, "notify: list employees")
	}
	out := make(map[string]model.Employee, len(list))
	for _, e := range list {
		out[e.ID] = e
	}
	return out, nil
}
