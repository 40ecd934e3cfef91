package roster

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestImport_CreatesAndFills(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	emp, err := st.CreateEmployer(ctx, "Acme")
	require.NoError(t, err)

	_, err = st.UpsertEmployees(ctx, []model.EmployeeUpsert{{
		ID: "maria", EmployerID: emp.ID, Email: "maria@co.com",
		FirstName: model.StringPtr("Maria"), Eligible: true, Token: "tok-maria",
	}}, store.EmployeeUpsertOptions{})
	require.NoError(t, err)

	csv := "Email,First Name,Last Name,Eligible\n" +
		"MARIA@co.com,MARIA G,Gomez,\n" +
		"jsmith@co.com,,,\n" +
		"jsmith@co.com,Later,Dup,\n" +
		",No,Email,\n" +
		"part.timer@co.com,,,no\n"

	im := NewImporter(st, 2)
	res, err := im.Import(ctx, emp.ID, "roster.csv", []byte(csv), false)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.SkippedNoEmail)

	got, err := st.EmployeesByEmail(ctx, emp.ID, []string{"maria@co.com", "jsmith@co.com", "part.timer@co.com"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	maria := got["maria@co.com"]
	assert.Equal(t, "Maria", model.Deref(maria.FirstName), "existing names are never overwritten")
	assert.Equal(t, "Gomez", model.Deref(maria.LastName), "blank names are filled")
	assert.Equal(t, "tok-maria", maria.Token)

	js := got["jsmith@co.com"]
	assert.Equal(t, "Jsmith", model.Deref(js.FirstName))
	assert.Nil(t, js.LastName)
	assert.True(t, js.Eligible)
	assert.Len(t, js.Token, 32)

	pt := got["part.timer@co.com"]
	assert.Equal(t, "Part", model.Deref(pt.FirstName))
	assert.Equal(t, "Timer", model.Deref(pt.LastName))
	assert.False(t, pt.Eligible)
}

func TestImport_SecondRunIsUnchanged(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	emp, err := st.CreateEmployer(ctx, "Acme")
	require.NoError(t, err)

	csv := []byte("Email,Name\nana@co.com,Ana Lopez\n")
	im := NewImporter(st, 0)
	_, err = im.Import(ctx, emp.ID, "roster.csv", csv, false)
	require.NoError(t, err)

	res, err := im.Import(ctx, emp.ID, "roster.csv", csv, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	emp, err := st.CreateEmployer(ctx, "Acme")
	require.NoError(t, err)

	res, err := NewImporter(st, 10).Import(ctx, emp.ID, "roster.csv", []byte("Email\na@co.com\nb@co.com\n"), true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.Created)

	list, err := st.ListEmployees(ctx, emp.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	im := NewImporter(st, 10)

	_, err := im.Import(ctx, "missing", "roster.csv", []byte("Email\na@co.com\n"), false)
	assert.True(t, errors.Is(err, ErrEmployerNotFound))

	emp, err := st.CreateEmployer(ctx, "Acme")
	require.NoError(t, err)
	_, err = im.Import(ctx, emp.ID, "roster.xlsx", []byte("PK\x03\x04garbage"), false)
	assert.True(t, errors.Is(err, ErrUnreadable))
}
