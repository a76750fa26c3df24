package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"
	"github.com/lumenweb/contactsync/internal/repository"

	"github.com/xuri/excelize/v2"
)

var columns = []string{
	"id", "form", "name", "email", "company", "use_case",
	"message", "sync_status", "remote_id", "created_at", "last_sync_at",
}

// Service exports submissions for the marketing team.
type Service struct {
	submissions repository.SubmissionRepository
	stats       repository.StatsRepository
	pageSize    int
}

// Option customizes a Service.
type Option func(*Service)

// WithPageSize sets how many submissions are read per page.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewService creates an export service.
func NewService(submissions repository.SubmissionRepository, stats repository.StatsRepository, opts ...Option) *Service {
	service := &Service{
		submissions: submissions,
		stats:       stats,
		pageSize:    500,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// WriteCSV streams submissions as CSV, paging through the repository so the
// full set never sits in memory.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, status *domain.SyncStatus) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := s.eachSubmission(ctx, status, func(submission domain.Submission) error {
		if writeErr := csvWriter.Write(submissionRow(submission)); writeErr != nil {
			return fmt.Errorf("failed to write row: %w", writeErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// WriteXLSX renders submissions into a single-sheet workbook.
func (s *Service) WriteXLSX(ctx context.Context, w io.Writer, status *domain.SyncStatus) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Submissions"
	f.SetSheetName("Sheet1", sheet)

	if err := f.SetSheetRow(sheet, "A1", &columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	rowIndex := 2
	err := s.eachSubmission(ctx, status, func(submission domain.Submission) error {
		row := submissionRow(submission)
		cell := fmt.Sprintf("A%d", rowIndex)
		if writeErr := f.SetSheetRow(sheet, cell, &row); writeErr != nil {
			return fmt.Errorf("failed to write row %d: %w", rowIndex, writeErr)
		}
		rowIndex++
		return nil
	})
	if err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// StatsRange returns daily aggregates for a form over the given window.
func (s *Service) StatsRange(ctx context.Context, formName string, from time.Time, to time.Time) ([]domain.DailyFormStats, error) {
	if strings.TrimSpace(formName) == "" {
		formName = "contact"
	}
	stats, err := s.stats.GetRange(ctx, formName, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return stats, nil
}

func (s *Service) eachSubmission(ctx context.Context, status *domain.SyncStatus, fn func(domain.Submission) error) error {
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		page, err := s.submissions.List(ctx, status, s.pageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to list submissions: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, submission := range page {
			if err := fn(submission); err != nil {
				return err
			}
		}
		if len(page) < s.pageSize {
			return nil
		}
		offset += s.pageSize
	}
}

func submissionRow(submission domain.Submission) []string {
	remoteID := ""
	if submission.RemoteID != nil {
		remoteID = *submission.RemoteID
	}
	lastSync := ""
	if submission.LastSyncAt != nil {
		lastSync = submission.LastSyncAt.UTC().Format(time.RFC3339)
	}
	return []string{
		submission.ID.String(),
		submission.FormName,
		submission.Name,
		submission.Email,
		submission.Company,
		submission.UseCase,
		submission.Message,
		string(submission.SyncStatus),
		remoteID,
		submission.CreatedAt.UTC().Format(time.RFC3339),
		lastSync,
	}
}
