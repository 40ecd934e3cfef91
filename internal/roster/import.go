package roster

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/db"
	"github.com/sells-group/benefits-notice/internal/metrics"
	"github.com/sells-group/benefits-notice/internal/sheet"
	"github.com/sells-group/benefits-notice/internal/store"
)

// DefaultBatchSize is the number of employee rows written per upsert.
const DefaultBatchSize = 500

var (
	ErrEmployerNotFound = errors.New("roster: employer not found")
	ErrUnreadable       = errors.New("roster: spreadsheet unreadable")
)

// Result reports what a roster import did, or would do on a dry run.
type Result struct {
	DryRun         bool `json:"dry_run"`
	Scanned        int  `json:"scanned"`
	Created        int  `json:"created"`
	Updated        int  `json:"updated"`
	Unchanged      int  `json:"unchanged"`
	SkippedNoEmail int  `json:"skipped_no_email"`
}

// Importer loads employee rosters into the store.
type Importer struct {
	store     store.Store
	batchSize int
}

// NewImporter returns an Importer. batchSize below one uses DefaultBatchSize.
func NewImporter(st store.Store, batchSize int) *Importer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Importer{store: st, batchSize: batchSize}
}

// Import reads a CSV or XLSX roster. New employees are created eligible
// (unless the file says otherwise) with a fresh notice token; existing
// employees only get blank names filled and, when the file has an
// eligibility column, their flag updated.
func (im *Importer) Import(ctx context.Context, employerID, fileName string, data []byte, dryRun bool) (*Result, error) {
	mode := metrics.ImportMode(metrics.ModeRoster, dryRun)
	defer metrics.TimeImport(mode)()

	if _, err := im.store.GetEmployer(ctx, employerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrEmployerNotFound, "roster: employer %s", employerID)
		}
		return nil, eris.Wrap(err, "roster: load employer")
	}

	rows, err := sheet.Read(fileName, data)
	if err != nil {
		return nil, eris.Wrapf(ErrUnreadable, "roster: %s: %v", fileName, err)
	}

	norm := NormalizeRows(rows)
	res := &Result{DryRun: dryRun, Scanned: len(rows), SkippedNoEmail: norm.SkippedNoEmail}

	existing, err := im.store.EmployeesByEmail(ctx, employerID, norm.Emails())
	if err != nil {
		return nil, eris.Wrap(err, "roster: load employees")
	}

	staged := StageEmployees(employerID, norm.Unique, existing, true)
	res.Created, res.Updated, res.Unchanged = staged.Created, staged.Updated, staged.Unchanged
	upserts := staged.Upserts

	metrics.ImportsTotal.WithLabelValues(mode).Inc()
	metrics.AddRows("skipped_no_email", res.SkippedNoEmail)
	if dryRun {
		return res, nil
	}

	for i, batch := range db.Chunk(upserts, im.batchSize) {
		if _, err := im.store.UpsertEmployees(ctx, batch, store.EmployeeUpsertOptions{UpdateEligible: true}); err != nil {
			return nil, eris.Wrapf(err, "roster: upsert batch %d", i)
		}
	}

	zap.L().Info("roster import complete",
		zap.String("employer_id", employerID),
		zap.String("file", fileName),
		zap.Int("scanned", res.Scanned),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped_no_email", res.SkippedNoEmail),
	)
	return res, nil
}
