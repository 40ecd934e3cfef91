package notice

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	st  *store.SQLiteStore
	svc *Service
	emp model.Employee
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	employer, err := st.CreateEmployer(ctx, "Acme")
	require.NoError(t, err)
	_, err = st.UpsertEmployees(ctx, []model.EmployeeUpsert{{
		ID:         model.NewID(),
		EmployerID: employer.ID,
		Email:      "ana@co.com",
		FirstName:  model.StringPtr("Ana"),
		Eligible:   true,
		Token:      "tok-ana",
	}}, store.EmployeeUpsertOptions{})
	require.NoError(t, err)
	got, err := st.EmployeesByEmail(ctx, employer.ID, []string{"ana@co.com"})
	require.NoError(t, err)

	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(st)
	svc.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return &fixture{st: st, svc: svc, emp: got["ana@co.com"]}
}

func (f *fixture) kinds(t *testing.T) []model.ActivityKind {
	t.Helper()
	events, err := f.st.ListActivity(context.Background(), f.emp.ID, 50)
	require.NoError(t, err)
	out := make([]model.ActivityKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestView_StampsFirstViewOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	page, err := f.svc.View(ctx, "tok-ana")
	require.NoError(t, err)
	assert.Equal(t, "Acme", page.EmployerName)
	assert.Equal(t, "Ana", page.FirstName)
	require.NotNil(t, page.FirstViewedAt)
	first := *page.FirstViewedAt

	page, err = f.svc.View(ctx, "tok-ana")
	require.NoError(t, err)
	assert.True(t, first.Equal(*page.FirstViewedAt))
	assert.Equal(t, []model.ActivityKind{model.ActivityNoticeViewed, model.ActivityNoticeViewed}, f.kinds(t))
}

func TestOptOut_IsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	page, err := f.svc.OptOut(ctx, "tok-ana")
	require.NoError(t, err)
	assert.True(t, page.OptedOut)
	first := *page.OptedOutAt

	page, err = f.svc.OptOut(ctx, "tok-ana")
	require.NoError(t, err)
	assert.True(t, first.Equal(*page.OptedOutAt))

	page, err = f.svc.OptIn(ctx, "tok-ana")
	require.NoError(t, err)
	assert.False(t, page.OptedOut)
	assert.Nil(t, page.OptedOutAt)

	assert.ElementsMatch(t,
		[]model.ActivityKind{model.ActivityOptedOut, model.ActivityOptedOut, model.ActivityOptedIn},
		f.kinds(t))
}

func TestAffirmInsurance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.AffirmInsurance(ctx, "tok-ana", Affirmation{HasCoverage: true, Carrier: "  "})
	assert.True(t, errors.Is(err, ErrCarrierRequired))

	page, err := f.svc.AffirmInsurance(ctx, "tok-ana", Affirmation{HasCoverage: true, Carrier: " Aetna "})
	require.NoError(t, err)
	assert.Equal(t, "Aetna", page.InsuranceCarrier)
	assert.NotNil(t, page.InsuranceAffirmedAt)

	page, err = f.svc.AffirmInsurance(ctx, "tok-ana", Affirmation{HasCoverage: false, Carrier: "Aetna"})
	require.NoError(t, err)
	assert.Empty(t, page.InsuranceCarrier)

	assert.Equal(t, []model.ActivityKind{model.ActivityInsuranceAffirmed, model.ActivityInsuranceAffirmed}, f.kinds(t))
}

func TestUnknownToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.View(ctx, "nope")
	assert.True(t, errors.Is(err, ErrUnknownToken))
	_, err = f.svc.OptOut(ctx, "")
	assert.True(t, errors.Is(err, ErrUnknownToken))
	assert.Empty(t, f.kinds(t))
}

func TestPage_IncludesActivePlanYear(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	py, err := f.st.CreatePlanYear(ctx, f.emp.EmployerID,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	page, err := f.svc.View(ctx, "tok-ana")
	require.NoError(t, err)
	require.NotNil(t, page.PlanYear)
	assert.Equal(t, py.ID, page.PlanYear.ID)
}
