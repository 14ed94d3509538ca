package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleFile() ParsedFile {
	return ParsedFile{
		Headers: []string{"Name", "Phone", "E-mail"},
		Rows: []RawRow{
			{"Name": "Ada", "Phone": "555-123-4567", "E-mail": "ada@example.com"},
			{"Name": "Bob", "Phone": "123", "E-mail": ""},
			{"Name": "Cy", "Phone": "+44 20 7946 0958", "E-mail": "nope"},
		},
	}
}

func mappingSession(t *testing.T) ImportSession {
	t.Helper()
	pf := sampleFile()
	a, err := Analyze(context.Background(), pf)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	s, err := NewSession("s1", "tenant-a", testNow).WithFile("leads.csv", pf, a, testNow)
	if err != nil {
		t.Fatalf("WithFile: %v", err)
	}
	return s
}

func previewSession(t *testing.T) ImportSession {
	t.Helper()
	s, err := mappingSession(t).ConfirmMapping(context.Background(), testNow)
	if err != nil {
		t.Fatalf("ConfirmMapping: %v", err)
	}
	return s
}

func TestSession_HappyPath(t *testing.T) {
	s := NewSession("s1", "tenant-a", testNow)
	if s.Stage != StageUpload {
		t.Fatalf("new session stage = %s, want upload", s.Stage)
	}

	s = mappingSession(t)
	if s.Stage != StageMapping {
		t.Fatalf("stage = %s, want mapping", s.Stage)
	}
	if got, _ := s.Mapping.Header(FieldPhoneNumber); got != "Phone" {
		t.Errorf("detected phone header = %q, want Phone", got)
	}
	if got, _ := s.Mapping.Header(FieldFirstName); got != "Name" {
		t.Errorf("detected first name header = %q, want Name", got)
	}

	s, err := s.ConfirmMapping(context.Background(), testNow)
	if err != nil {
		t.Fatalf("ConfirmMapping: %v", err)
	}
	if s.Stage != StagePreview {
		t.Fatalf("stage = %s, want preview", s.Stage)
	}
	valid, invalid := Counts(s.Records)
	if valid != 1 || invalid != 2 {
		t.Errorf("counts = %d/%d, want 1/2", valid, invalid)
	}

	campaign := uuid.New()
	s, err = s.BeginCommit(&campaign, testNow)
	if err != nil {
		t.Fatalf("BeginCommit: %v", err)
	}
	if s.Stage != StageImporting || s.CampaignID == nil || *s.CampaignID != campaign {
		t.Fatalf("BeginCommit state = %s campaign %v", s.Stage, s.CampaignID)
	}

	s, err = s.Complete(ImportResult{Succeeded: 1}, testNow)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if s.Stage != StageComplete || s.Result == nil || s.Result.Succeeded != 1 {
		t.Fatalf("Complete state = %s result %+v", s.Stage, s.Result)
	}

	later := testNow.Add(time.Minute)
	s, err = s.Reset(later)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Stage != StageUpload || s.ID != "s1" || s.TenantID != "tenant-a" || s.Rows != nil || s.Result != nil {
		t.Errorf("Reset did not return a fresh session: %+v", s)
	}
}

func TestSession_TransitionsDoNotMutateReceiver(t *testing.T) {
	s := mappingSession(t)
	before := s.Mapping.Clone()

	next, err := s.WithMapping(map[Field]string{FieldEmail: "", FieldCompany: "Name"}, testNow)
	if err != nil {
		t.Fatalf("WithMapping: %v", err)
	}
	if len(s.Mapping) != len(before) {
		t.Errorf("receiver mapping changed: %v", s.Mapping)
	}
	if _, ok := next.Mapping.Header(FieldEmail); ok {
		t.Error("email should be unmapped in the new snapshot")
	}
	if got, _ := next.Mapping.Header(FieldCompany); got != "Name" {
		t.Errorf("company = %q, want Name", got)
	}

	p, err := next.ConfirmMapping(context.Background(), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if next.Records != nil || next.Stage != StageMapping {
		t.Error("ConfirmMapping mutated its receiver")
	}
	if p.Records == nil {
		t.Error("preview snapshot has no records")
	}
}

func TestSession_Guards(t *testing.T) {
	tests := []struct {
		name    string
		run     func(t *testing.T) error
		wantErr error
	}{
		{
			name: "confirm requires phone mapping",
			run: func(t *testing.T) error {
				s, err := mappingSession(t).WithMapping(map[Field]string{FieldPhoneNumber: ""}, testNow)
				if err != nil {
					t.Fatal(err)
				}
				_, err = s.ConfirmMapping(context.Background(), testNow)
				return err
			},
			wantErr: ErrPhoneUnmapped,
		},
		{
			name: "mapping override must name a header in the file",
			run: func(t *testing.T) error {
				_, err := mappingSession(t).WithMapping(map[Field]string{FieldEmail: "Fax"}, testNow)
				return err
			},
			wantErr: ErrUnknownHeader,
		},
		{
			name: "commit requires a valid record",
			run: func(t *testing.T) error {
				s := mappingSession(t)
				s.Rows = []RawRow{{"Phone": "1"}}
				s, err := s.ConfirmMapping(context.Background(), testNow)
				if err != nil {
					t.Fatal(err)
				}
				_, err = s.BeginCommit(nil, testNow)
				return err
			},
			wantErr: ErrNoValidRecords,
		},
		{
			name: "commit from mapping is rejected",
			run: func(t *testing.T) error {
				_, err := mappingSession(t).BeginCommit(nil, testNow)
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "second commit is rejected",
			run: func(t *testing.T) error {
				s, err := previewSession(t).BeginCommit(nil, testNow)
				if err != nil {
					t.Fatal(err)
				}
				_, err = s.BeginCommit(nil, testNow)
				return err
			},
			wantErr: ErrCommitInProgress,
		},
		{
			name: "back while importing is rejected",
			run: func(t *testing.T) error {
				s, err := previewSession(t).BeginCommit(nil, testNow)
				if err != nil {
					t.Fatal(err)
				}
				_, err = s.Back(testNow)
				return err
			},
			wantErr: ErrCommitInProgress,
		},
		{
			name: "back from upload is rejected",
			run: func(t *testing.T) error {
				_, err := NewSession("s", "t", testNow).Back(testNow)
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "reset before completion is rejected",
			run: func(t *testing.T) error {
				_, err := previewSession(t).Reset(testNow)
				return err
			},
			wantErr: ErrInvalidTransition,
		},
		{
			name: "upload twice is rejected",
			run: func(t *testing.T) error {
				_, err := mappingSession(t).WithFile("again.csv", sampleFile(), Analysis{}, testNow)
				return err
			},
			wantErr: ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(t)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSession_Back(t *testing.T) {
	p := previewSession(t)

	m, err := p.Back(testNow)
	if err != nil {
		t.Fatalf("Back from preview: %v", err)
	}
	if m.Stage != StageMapping || m.Records != nil {
		t.Errorf("Back from preview = stage %s, %d records", m.Stage, len(m.Records))
	}
	if len(m.Rows) != len(p.Rows) {
		t.Error("Back from preview should keep the file")
	}

	// Confirming again recomputes the records from the rows.
	again, err := m.ConfirmMapping(context.Background(), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Records) != len(p.Records) {
		t.Errorf("recomputed %d records, want %d", len(again.Records), len(p.Records))
	}

	u, err := m.Back(testNow)
	if err != nil {
		t.Fatalf("Back from mapping: %v", err)
	}
	if u.Stage != StageUpload || u.Rows != nil || u.Headers != nil || len(u.Mapping) != 0 {
		t.Errorf("Back from mapping should discard the file: %+v", u.Summary())
	}
}

func TestSession_WithUploadError(t *testing.T) {
	s := NewSession("s1", "tenant-a", testNow)
	failed, err := s.WithUploadError("bad.csv", "File is not a valid CSV", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if failed.Stage != StageUpload {
		t.Errorf("stage = %s, want upload", failed.Stage)
	}
	if failed.LastError == "" || failed.Rows != nil {
		t.Errorf("unexpected state after upload error: %+v", failed.Summary())
	}

	// A later good upload clears the diagnostic.
	next, err := failed.WithFile("good.csv", sampleFile(), Analysis{Mapping: ColumnMapping{}}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if next.LastError != "" {
		t.Errorf("LastError = %q, want cleared", next.LastError)
	}
}

func TestSession_Summary(t *testing.T) {
	sum := previewSession(t).Summary()
	if sum.TotalRows != 3 || sum.ValidCount != 1 || sum.InvalidCount != 2 {
		t.Errorf("summary counts = %d/%d/%d, want 3/1/2", sum.TotalRows, sum.ValidCount, sum.InvalidCount)
	}
	if sum.ValidCount+sum.InvalidCount != sum.TotalRows {
		t.Error("valid + invalid must equal total")
	}

	empty := NewSession("s", "t", testNow).Summary()
	if empty.Headers == nil {
		t.Error("Headers should be an empty slice, not nil")
	}
}
