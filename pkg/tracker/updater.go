package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opawatch/tracker/pkg/common/models"
	"github.com/opawatch/tracker/pkg/lookup"
	"github.com/opawatch/tracker/pkg/socrata"
	"github.com/opawatch/tracker/pkg/validate"
	"gorm.io/datatypes"
)

const invalidCaseNum = "Invalid case number"

// soqlTimeLayout renders watermarks into SoQL where clauses.
const soqlTimeLayout = "2006-01-02T15:04:05"

// CaseFinder is the enrichment boundary: absent detail is (nil, nil),
// not an error.
type CaseFinder interface {
	FindCase(ctx context.Context, caseNum string) (*models.CaseResult, error)
}

// RowFetcher retrieves a source URL as a sequence of loosely-typed rows.
type RowFetcher interface {
	Fetch(ctx context.Context, url string) ([]socrata.Row, error)
}

// Updater is one incremental source: it knows its tag, how to build the
// delta query past a watermark, and how to turn raw rows into Updates.
type Updater interface {
	UpdateType() UpdateType
	UpdateURL(since time.Time) string
	Process(ctx context.Context, rows []socrata.Row, batch time.Time) ([]*Update, error)
}

// runUpdater fetches an updater's delta and hands the rows to Process.
// Fetch and parse failures propagate; there is no retry at this layer.
func runUpdater(ctx context.Context, fetcher RowFetcher, u Updater, since, now time.Time) ([]*Update, error) {
	rows, err := fetcher.Fetch(ctx, u.UpdateURL(since))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u.UpdateType(), err)
	}
	return u.Process(ctx, rows, now)
}

// parseEventDate validates and parses a source timestamp, degrading to the
// epoch on malformed input.
func parseEventDate(raw string) time.Time {
	validated := validate.Field(raw, validate.Timestamp, "1970-01-01T00:00:00")
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, validated); err == nil {
			return t
		}
	}
	return time.Unix(0, 0).UTC()
}

// ClosedCaseSummaryUpdater tracks closed-case-summary documents posted to
// the city site. One row is one Update.
type ClosedCaseSummaryUpdater struct {
	client  *socrata.Client
	dataset string
	finder  CaseFinder
}

func NewClosedCaseSummaryUpdater(client *socrata.Client, dataset string, finder CaseFinder) *ClosedCaseSummaryUpdater {
	return &ClosedCaseSummaryUpdater{client: client, dataset: dataset, finder: finder}
}

func (u *ClosedCaseSummaryUpdater) UpdateType() UpdateType {
	return CCSPublished
}

func (u *ClosedCaseSummaryUpdater) UpdateURL(since time.Time) string {
	soql := fmt.Sprintf("select * where (`posted_date` > '%s') order by `posted_date` desc", since.Format(soqlTimeLayout))
	return u.client.QueryURL(u.dataset, soql)
}

func (u *ClosedCaseSummaryUpdater) Process(ctx context.Context, rows []socrata.Row, batch time.Time) ([]*Update, error) {
	updates := make([]*Update, 0, len(rows))
	for _, row := range rows {
		caseObj := row.Map("case")
		update := &Update{
			CaseNum:     validate.Field(caseObj.String("description"), validate.CaseNum, invalidCaseNum),
			CreateDate:  batch,
			Disposition: validate.Field(row.String("disposition"), validate.CCSDisposition, lookup.Unknown),
			EventDate:   parseEventDate(row.String("posted_date")),
			Type:        u.UpdateType(),
			URL:         validate.Field(caseObj.String("url"), validate.CCSURL, ""),
		}

		result, err := u.finder.FindCase(ctx, update.CaseNum)
		if err != nil {
			return nil, fmt.Errorf("%s: enriching %s: %w", u.UpdateType(), update.CaseNum, err)
		}
		if result != nil {
			update.Officers = datatypes.JSONSlice[string](result.Officers)
			update.Allegations = datatypes.JSONSlice[string](result.Allegations)
		} else {
			update.Officers = datatypes.JSONSlice[string]{}
			update.Allegations = datatypes.JSONSlice[string]{}
		}

		updates = append(updates, update)
	}
	return updates, nil
}

// NewComplaintUpdater tracks freshly filed complaints. The source query is
// filtered server-side to intake-status rows; one row is one Update.
type NewComplaintUpdater struct {
	client  *socrata.Client
	dataset string
	finder  CaseFinder
}

func NewNewComplaintUpdater(client *socrata.Client, dataset string, finder CaseFinder) *NewComplaintUpdater {
	return &NewComplaintUpdater{client: client, dataset: dataset, finder: finder}
}

func (u *NewComplaintUpdater) UpdateType() UpdateType {
	return ComplaintFiled
}

func (u *NewComplaintUpdater) UpdateURL(since time.Time) string {
	soql := fmt.Sprintf("select * where ((`task_creation_date` > '%s') and (upper(`status_description`) = upper('OPA Intake'))) order by `task_creation_date` desc", since.Format(soqlTimeLayout))
	return u.client.QueryURL(u.dataset, soql)
}

func (u *NewComplaintUpdater) Process(ctx context.Context, rows []socrata.Row, batch time.Time) ([]*Update, error) {
	updates := make([]*Update, 0, len(rows))
	for _, row := range rows {
		update := &Update{
			CaseNum:    validate.Field(row.String("opa_case_number"), validate.CaseNum, invalidCaseNum),
			CreateDate: batch,
			EventDate:  parseEventDate(row.String("task_creation_date")),
			Type:       u.UpdateType(),
		}

		result, err := u.finder.FindCase(ctx, update.CaseNum)
		if err != nil {
			return nil, fmt.Errorf("%s: enriching %s: %w", u.UpdateType(), update.CaseNum, err)
		}
		if result != nil {
			update.Officers = datatypes.JSONSlice[string](result.Officers)
			update.Allegations = datatypes.JSONSlice[string](result.Allegations)
			update.Disposition = result.Disposition
		} else {
			update.Officers = datatypes.JSONSlice[string]{}
			update.Allegations = datatypes.JSONSlice[string]{}
			update.Disposition = ""
		}

		updates = append(updates, update)
	}
	return updates, nil
}

// ClosedInvestigationUpdater tracks completed investigations. The source
// emits one row per (case, officer, allegation) tuple, so rows are grouped
// by case number and each group reduced into a single Update.
type ClosedInvestigationUpdater struct {
	client  *socrata.Client
	dataset string
}

func NewClosedInvestigationUpdater(client *socrata.Client, dataset string) *ClosedInvestigationUpdater {
	return &ClosedInvestigationUpdater{client: client, dataset: dataset}
}

func (u *ClosedInvestigationUpdater) UpdateType() UpdateType {
	return InvestigationClosed
}

func (u *ClosedInvestigationUpdater) UpdateURL(since time.Time) string {
	soql := fmt.Sprintf("select * where (`investigation_end_date` > '%s') order by `investigation_end_date` desc", since.Format(soqlTimeLayout))
	return u.client.QueryURL(u.dataset, soql)
}

func (u *ClosedInvestigationUpdater) Process(ctx context.Context, rows []socrata.Row, batch time.Time) ([]*Update, error) {
	// The grouping is independent of row arrival order.
	groups := map[string][]socrata.Row{}
	for _, row := range rows {
		key := row.String("file_number")
		groups[key] = append(groups[key], row)
	}

	caseNums := make([]string, 0, len(groups))
	for caseNum := range groups {
		caseNums = append(caseNums, caseNum)
	}
	sort.Strings(caseNums)

	updates := make([]*Update, 0, len(groups))
	for _, caseNum := range caseNums {
		updates = append(updates, u.processCase(caseNum, groups[caseNum], batch))
	}
	return updates, nil
}

func (u *ClosedInvestigationUpdater) processCase(caseNum string, rows []socrata.Row, batch time.Time) *Update {
	officers := map[string]struct{}{}
	allegations := map[string]struct{}{}
	dispositions := map[string]struct{}{}

	for _, row := range rows {
		officers[validate.Field(row.String("named_employee_id"), validate.Serial, lookup.Unknown)] = struct{}{}
		allegations[validate.Field(row.String("allegation"), validate.FreeText, lookup.Unknown)] = struct{}{}
		dispositions[validate.Field(row.String("disposition"), validate.FreeText, lookup.Unknown)] = struct{}{}
	}

	return &Update{
		CaseNum:    validate.Field(caseNum, validate.CaseNum, invalidCaseNum),
		CreateDate: batch,
		// The end date is uniform within a group; the first row speaks for all.
		EventDate:   parseEventDate(rows[0].String("investigation_end_date")),
		Type:        u.UpdateType(),
		Officers:    datatypes.JSONSlice[string](lookup.SortedSet(officers)),
		Allegations: datatypes.JSONSlice[string](lookup.SortedSet(allegations)),
		Disposition: lookup.ReduceDisposition(dispositions),
	}
}
