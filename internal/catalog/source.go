package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/zaavg/storefront/pkg/errors"
)

// DefaultHeaderName is the label the spreadsheet puts in the name column of
// its header row.
const DefaultHeaderName = "Название"

// Source delivers the raw catalog rows.
type Source interface {
	Fetch(ctx context.Context) ([]Row, error)
}

// SheetSource reads the spreadsheet-backed JSON feed ({"data": [row, ...]}).
type SheetSource struct {
	URL        string
	HeaderName string
	Client     *http.Client
}

func NewSheetSource(url, headerName string, timeout time.Duration) *SheetSource {
	if headerName == "" {
		headerName = DefaultHeaderName
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SheetSource{
		URL:        url,
		HeaderName: headerName,
		Client:     &http.Client{Timeout: timeout},
	}
}

type sheetPayload struct {
	Data []Row `json:"data"`
}

func (s *SheetSource) Fetch(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalog source unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("catalog source returned status %d", resp.StatusCode))
	}

	var payload sheetPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode catalog payload")
	}

	rows := make([]Row, 0, len(payload.Data))
	for _, row := range payload.Data {
		name := strings.TrimSpace(row.Name.String())
		if name == "" || name == s.HeaderName {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// StaticSource serves a fixed set of rows.
type StaticSource []Row

func (s StaticSource) Fetch(context.Context) ([]Row, error) {
	out := make([]Row, len(s))
	copy(out, s)
	return out, nil
}
