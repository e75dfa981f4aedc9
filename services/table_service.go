package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/itish2003/ragagent/llm"
	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
)

// DefaultMaxTableRows caps how many data rows are sent to the model.
const DefaultMaxTableRows = 200

// TableService answers questions about a CSV table with a single model call.
type TableService struct {
	model   llm.Model
	maxRows int
	timeout time.Duration
	log     *logger.Logger
}

func NewTableService(model llm.Model, maxRows int, log *logger.Logger) *TableService {
	if maxRows <= 0 {
		maxRows = DefaultMaxTableRows
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TableService{model: model, maxRows: maxRows, timeout: DefaultModelTimeout, log: log}
}

// WithTimeout bounds the model call of each query.
func (s *TableService) WithTimeout(d time.Duration) *TableService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Table is a parsed CSV file.
type Table struct {
	Header    []string
	Rows      [][]string
	Truncated bool
}

// ParseTable reads CSV from r keeping at most maxRows data rows.
func ParseTable(r io.Reader, maxRows int) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: table is empty", models.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading csv header: %v", models.ErrInvalidInput, err)
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading csv: %v", models.ErrInvalidInput, err)
		}
		if len(t.Rows) == maxRows {
			t.Truncated = true
			break
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// Render lays the table out one pipe-delimited line per row.
func (t *Table) Render() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(t.Header, " | "))
	sb.WriteByte('\n')
	for _, row := range t.Rows {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteByte('\n')
	}
	if t.Truncated {
		fmt.Fprintf(&sb, "(only the first %d rows are shown)\n", len(t.Rows))
	}
	return sb.String()
}

// Query answers question from the CSV data in r.
func (s *TableService) Query(ctx context.Context, r io.Reader, question string) (*models.TableQueryResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}
	table, err := ParseTable(r, s.maxRows)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	turn, err := s.model.Generate(callCtx, llm.Request{
		System: tablePrompt,
		Messages: []models.Message{{
			Role:    models.RoleUser,
			Content: "Table:\n" + table.Render() + "\nQuestion: " + question,
		}},
	})
	if err != nil {
		if !errors.Is(err, models.ErrExternalService) {
			err = fmt.Errorf("%w: %v", models.ErrExternalService, err)
		}
		return nil, err
	}
	s.log.Info("table query answered", "rows", len(table.Rows), "truncated", table.Truncated)

	answer := strings.TrimSpace(turn.Text)
	if answer == "" {
		answer = emptyAnswer
	}
	return &models.TableQueryResponse{Answer: answer, Rows: len(table.Rows)}, nil
}
