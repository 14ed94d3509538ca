package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/leadflow/internal/core"
)

const sampleLeads = "First Name,Mobile,E-mail,Employer\n" +
	"Ada,555-010-0001,ada@example.com,Analytical\n" +
	"Bob,12,bob@example.com,\n" +
	"Cy,(555) 010-0002,,Cy Co\n"

// run executes leadctl with args against a fresh SQLite database.
func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", "sqlite://" + db, "--tenant", "acme"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImport_DryRunThenCommit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "leads.db")
	file := writeFile(t, "leads.csv", sampleLeads)

	out, err := run(t, db, "import", "--file", file, "--map", "company=Employer", "--dry-run", "--format", "json")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	var report importReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Summary.ValidCount != 2 || report.Summary.InvalidCount != 1 || report.Result != nil {
		t.Errorf("dry run report = %+v", report)
	}
	if report.Mapping[core.FieldCompany] != "Employer" || report.Mapping[core.FieldPhoneNumber] != "Mobile" {
		t.Errorf("mapping = %v", report.Mapping)
	}

	invalid := filepath.Join(t.TempDir(), "invalid.csv")
	out, err = run(t, db, "import", "--file", file, "--invalid-out", invalid)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported") {
		t.Errorf("text output missing result:\n%s", out)
	}
	data, err := os.ReadFile(invalid)
	if err != nil {
		t.Fatalf("invalid rows file: %v", err)
	}
	if !strings.HasPrefix(string(data), "_row,_error,") {
		t.Errorf("invalid rows = %q", data)
	}

	out, err = run(t, db, "history", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var entries []core.AuditEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history %q: %v", out, err)
	}
	if len(entries) != 1 || entries[0].Succeeded != 2 {
		t.Errorf("history = %+v", entries)
	}
}

func TestImport_Campaign(t *testing.T) {
	db := filepath.Join(t.TempDir(), "leads.db")
	file := writeFile(t, "leads.csv", sampleLeads)

	out, err := run(t, db, "campaign", "create", "--name", "Spring", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var c core.Campaign
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}

	if _, err := run(t, db, "import", "--file", file, "--campaign", c.ID.String()); err != nil {
		t.Fatalf("import into campaign: %v", err)
	}

	_, err = run(t, db, "import", "--file", file, "--campaign", "00000000-0000-0000-0000-000000000001")
	if err == nil || !strings.Contains(err.Error(), "IMP006") {
		t.Errorf("unknown campaign error = %v", err)
	}

	out, err = run(t, db, "campaign", "list")
	if err != nil || !strings.Contains(out, "Spring") {
		t.Errorf("campaign list = %q, %v", out, err)
	}
}

func TestImport_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "leads.db")
	file := writeFile(t, "leads.csv", sampleLeads)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad map flag", []string{"import", "--file", file, "--map", "email"}, "want field=Header"},
		{"unknown field", []string{"import", "--file", file, "--map", "fax=Mobile"}, "unknown field"},
		{"unknown header", []string{"import", "--file", file, "--map", "email=Nope"}, "MAP002"},
		{"phone unmapped", []string{"import", "--file", file, "--map", "phone_number="}, "MAP001"},
		{"bad campaign", []string{"import", "--file", file, "--campaign", "x"}, "invalid campaign id"},
		{"empty file", []string{"import", "--file", writeFile(t, "empty.csv", "")}, "FILE005"},
		{"bad format", []string{"detect", "--file", file, "--format", "yaml"}, "invalid format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, db, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	file := writeFile(t, "leads.csv", sampleLeads)
	db := filepath.Join(t.TempDir(), "unused.db")

	out, err := run(t, db, "detect", "--file", file)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Phone Number *", "Mobile", "E-mail", "(unmapped)", "Rows"} {
		if !strings.Contains(out, want) {
			t.Errorf("detect output missing %q:\n%s", want, out)
		}
	}
}

func TestParseMappings(t *testing.T) {
	got, err := parseMappings([]string{"Email=Work Email", "company="})
	if err != nil {
		t.Fatal(err)
	}
	if got[core.FieldEmail] != "Work Email" {
		t.Errorf("email = %q", got[core.FieldEmail])
	}
	if h, ok := got[core.FieldCompany]; !ok || h != "" {
		t.Errorf("company = %q, %v", h, ok)
	}
}

func TestTemplates(t *testing.T) {
	db := filepath.Join(t.TempDir(), "leads.db")
	file := writeFile(t, "leads.csv", sampleLeads)

	if _, err := run(t, db, "import", "--file", file, "--map", "company=Employer", "--save-template", "Fair", "--dry-run"); err != nil {
		t.Fatalf("save template: %v", err)
	}

	out, err := run(t, db, "template", "list", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var templates []core.MappingTemplate
	if err := json.Unmarshal([]byte(out), &templates); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(templates) != 1 || templates[0].Name != "Fair" {
		t.Fatalf("templates = %+v", templates)
	}

	out, err = run(t, db, "import", "--file", file, "--template", "fair", "--dry-run", "--format", "json")
	if err != nil {
		t.Fatalf("apply template: %v", err)
	}
	var report importReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Mapping[core.FieldCompany] != "Employer" {
		t.Errorf("mapping = %v", report.Mapping)
	}

	if _, err := run(t, db, "import", "--file", file, "--template", "missing", "--dry-run"); err == nil || !strings.Contains(err.Error(), "TPL001") {
		t.Errorf("missing template error = %v", err)
	}

	if _, err := run(t, db, "template", "delete", templates[0].ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, db, "template", "delete", templates[0].ID.String()); err == nil {
		t.Error("second delete succeeded")
	}
}
