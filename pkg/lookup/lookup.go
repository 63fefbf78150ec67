package lookup

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opawatch/tracker/pkg/common/httpclient"
	"github.com/opawatch/tracker/pkg/common/logger"
	"github.com/opawatch/tracker/pkg/common/models"
	"github.com/opawatch/tracker/pkg/socrata"
	"github.com/opawatch/tracker/pkg/validate"
)

// Unknown is the shared sentinel every failed lookup and every malformed
// field degrades to.
const Unknown = "Unknown"

// PartiallySustained is recorded when the rows of one case disagree on
// disposition.
const PartiallySustained = "Partially Sustained"

// Service resolves officer serials/names from two-column CSV feeds and
// enriches case numbers from the case-detail dataset. The CSV maps are
// loaded once on first use and read-only afterwards.
type Service struct {
	client        *socrata.Client
	detailDataset string
	http          *http.Client
	rosterURL     string
	uidURL        string

	once    sync.Once
	names   map[string]string // serial -> name
	serials map[string]string // uid -> serial
}

func NewService(client *socrata.Client, detailDataset, rosterURL, uidURL string, timeout time.Duration) *Service {
	return &Service{
		client:        client,
		detailDataset: detailDataset,
		http:          httpclient.New(timeout),
		rosterURL:     rosterURL,
		uidURL:        uidURL,
	}
}

func (s *Service) load(ctx context.Context) {
	s.once.Do(func() {
		s.names = s.csvToMap(ctx, "roster", s.rosterURL)
		s.serials = s.csvToMap(ctx, "uid", s.uidURL)
	})
}

// csvToMap builds a map from a CSV feed using the first column as key and
// the second as value. Extra columns are ignored; a missing URL or a failed
// fetch leaves the map empty so every lookup answers Unknown.
func (s *Service) csvToMap(ctx context.Context, name, url string) map[string]string {
	if url == "" {
		logger.Log.WithField("feed", name).Error("lookup csv not configured, all lookups will return Unknown")
		return map[string]string{}
	}

	var body []byte
	err := httpclient.Retry(ctx, 3, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("csv feed returned status %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		logger.Log.WithError(err).WithField("feed", name).Error("failed to load lookup csv, all lookups will return Unknown")
		return map[string]string{}
	}

	reader := csv.NewReader(strings.NewReader(strings.TrimSpace(string(body))))
	reader.FieldsPerRecord = -1

	result := map[string]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Log.WithError(err).WithField("feed", name).Warn("skipping malformed csv record")
			continue
		}
		if len(record) < 2 {
			continue
		}
		result[record[0]] = record[1]
	}

	logger.Log.WithFields(map[string]interface{}{"feed": name, "entries": len(result)}).Info("lookup csv loaded")
	return result
}

// FindName resolves an officer serial number to a name.
func (s *Service) FindName(ctx context.Context, serial string) string {
	s.load(ctx)
	if name, ok := s.names[serial]; ok {
		return name
	}
	return Unknown
}

// FindSerial resolves an internal uid to an officer serial number.
func (s *Service) FindSerial(ctx context.Context, uid string) string {
	s.load(ctx)
	if serial, ok := s.serials[uid]; ok {
		return serial
	}
	return Unknown
}

// FindCase queries the case-detail dataset for one case number,
// case-insensitively. A case with no rows yields (nil, nil); fetch and
// decode failures propagate.
func (s *Service) FindCase(ctx context.Context, caseNum string) (*models.CaseResult, error) {
	soql := fmt.Sprintf("select * where (upper(`file_number`) = upper('%s'))", caseNum)
	rows, err := s.client.Fetch(ctx, s.client.QueryURL(s.detailDataset, soql))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	officers := map[string]struct{}{}
	allegations := map[string]struct{}{}
	dispositions := map[string]struct{}{}

	for _, row := range rows {
		officers[validate.Field(row.String("named_employee_id"), validate.Serial, Unknown)] = struct{}{}
		allegations[validate.Field(row.String("allegation"), validate.FreeText, Unknown)] = struct{}{}
		dispositions[validate.Field(row.String("disposition"), validate.FreeText, Unknown)] = struct{}{}
	}

	return &models.CaseResult{
		CaseNum:     caseNum,
		Officers:    SortedSet(officers),
		Allegations: SortedSet(allegations),
		Disposition: ReduceDisposition(dispositions),
	}, nil
}

// SortedSet renders a dedup set as a deterministic ordered list.
func SortedSet(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReduceDisposition collapses the disposition set: a single agreed value
// stands, disagreement becomes "Partially Sustained".
func ReduceDisposition(set map[string]struct{}) string {
	if len(set) == 1 {
		for d := range set {
			return d
		}
	}
	return PartiallySustained
}
