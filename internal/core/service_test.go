package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeGateway stores the first keep leads it is given (all when keep < 0).
type fakeGateway struct {
	mu    sync.Mutex
	keep  int
	err   error
	calls int
	got   []LeadInput
}

func (g *fakeGateway) CreateMany(ctx context.Context, leads []LeadInput) ([]Lead, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.got = append(g.got, leads...)
	if g.err != nil {
		return nil, g.err
	}
	n := len(leads)
	if g.keep >= 0 && g.keep < n {
		n = g.keep
	}
	return toLeads(leads[:n]), nil
}

func toLeads(in []LeadInput) []Lead {
	out := make([]Lead, len(in))
	for i, l := range in {
		out[i] = Lead{
			ID:          uuid.New(),
			TenantID:    l.TenantID,
			PhoneNumber: l.PhoneNumber,
			Status:      l.Status,
			Source:      l.Source,
			CampaignID:  l.CampaignID,
			SourceRow:   l.SourceRow,
		}
	}
	return out
}

// detailedGateway rejects every lead whose source row is in reject.
type detailedGateway struct {
	fakeGateway
	reject map[int]string
}

func (g *detailedGateway) CreateManyDetailed(ctx context.Context, leads []LeadInput) (CommitReport, error) {
	var report CommitReport
	for _, l := range leads {
		if reason, ok := g.reject[l.SourceRow]; ok {
			report.Rejected = append(report.Rejected, RowRejection{Row: l.SourceRow, Reason: reason})
			continue
		}
		report.Accepted = append(report.Accepted, toLeads([]LeadInput{l})...)
	}
	return report, nil
}

// blockingGateway holds its first call until release is closed.
type blockingGateway struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  error
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *blockingGateway) CreateMany(ctx context.Context, leads []LeadInput) ([]Lead, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.ctxErr = ctx.Err()
	return toLeads(leads), nil
}

type panicGateway struct{}

func (panicGateway) CreateMany(context.Context, []LeadInput) ([]Lead, error) {
	panic("store exploded")
}

type fakeCampaigns map[uuid.UUID]string

func (c fakeCampaigns) CampaignExists(_ context.Context, tenantID string, id uuid.UUID) (bool, error) {
	return c[id] == tenantID, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func leadsCSV(valid, invalid int) string {
	var b strings.Builder
	b.WriteString("First Name,Phone,Email\n")
	for i := 0; i < valid; i++ {
		fmt.Fprintf(&b, "Lead %d,555-010-%04d,lead%d@example.com\n", i, i, i)
	}
	for i := 0; i < invalid; i++ {
		fmt.Fprintf(&b, "Bad %d,12,\n", i)
	}
	return b.String()
}

func newTestService(t *testing.T, gw Gateway, opts Options) *Service {
	t.Helper()
	svc, err := NewService(gw, opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

// toPreview runs a file through upload and mapping confirmation.
func toPreview(t *testing.T, svc *Service, tenant, csv string) ImportSession {
	t.Helper()
	ctx := context.Background()
	sess, err := svc.StartImport(ctx, tenant, "leads.csv", strings.NewReader(csv), nil)
	if err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	sess, err = svc.ConfirmMapping(ctx, sess.ID, tenant)
	if err != nil {
		t.Fatalf("ConfirmMapping: %v", err)
	}
	return sess
}

func TestNewService_RequiresGateway(t *testing.T) {
	if _, err := NewService(nil, Options{}); err == nil {
		t.Fatal("expected error for nil gateway")
	}
}

func TestService_CommitCountOnlyGateway(t *testing.T) {
	gw := &fakeGateway{keep: 7}
	svc := newTestService(t, gw, Options{})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(10, 0))
	if sess.Stage != StagePreview {
		t.Fatalf("stage = %s, want preview", sess.Stage)
	}

	done, err := svc.Commit(context.Background(), sess.ID, "tenant-a", nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if done.Stage != StageComplete {
		t.Fatalf("stage = %s, want complete", done.Stage)
	}
	if done.Result.Succeeded != 7 || done.Result.Failed != 3 {
		t.Errorf("result = %d/%d, want 7/3", done.Result.Succeeded, done.Result.Failed)
	}

	if len(gw.got) != 10 {
		t.Fatalf("gateway got %d leads, want 10", len(gw.got))
	}
	for i, l := range gw.got {
		if l.TenantID != "tenant-a" || l.Status != DefaultLeadStatus || l.Source != DefaultSourceTag {
			t.Errorf("lead %d = %+v", i, l)
		}
		if l.SourceRow != i+FirstDataRow {
			t.Errorf("lead %d source row = %d, want %d", i, l.SourceRow, i+FirstDataRow)
		}
	}
}

func TestService_CommitSubmitsOnlyValidRecords(t *testing.T) {
	gw := &fakeGateway{keep: -1}
	campaign := uuid.New()
	svc := newTestService(t, gw, Options{
		Defaults:  CommitDefaults{Status: "fresh", Source: "spring_expo"},
		Campaigns: fakeCampaigns{campaign: "tenant-a"},
	})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(3, 2))
	done, err := svc.Commit(context.Background(), sess.ID, "tenant-a", &campaign)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if done.Result.Succeeded != 3 || done.Result.Failed != 0 {
		t.Errorf("result = %+v, want 3 succeeded", done.Result)
	}
	if len(gw.got) != 3 {
		t.Fatalf("gateway got %d leads, want 3", len(gw.got))
	}
	for _, l := range gw.got {
		if l.Status != "fresh" || l.Source != "spring_expo" {
			t.Errorf("defaults not applied: %+v", l)
		}
		if l.CampaignID == nil || *l.CampaignID != campaign {
			t.Errorf("campaign = %v, want %s", l.CampaignID, campaign)
		}
	}
}

func TestService_CommitGatewayError(t *testing.T) {
	gw := &fakeGateway{keep: -1, err: errors.New("dial tcp: connection refused")}
	svc := newTestService(t, gw, Options{})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(4, 1))
	done, err := svc.Commit(context.Background(), sess.ID, "tenant-a", nil)
	if err != nil {
		t.Fatalf("Commit returned error %v; gateway failures belong in the result", err)
	}
	if done.Stage != StageComplete {
		t.Fatalf("stage = %s, want complete", done.Stage)
	}
	if done.Result.Succeeded != 0 || done.Result.Failed != 4 {
		t.Errorf("result = %d/%d, want 0/4", done.Result.Succeeded, done.Result.Failed)
	}
	if !strings.Contains(done.Result.Error, "DB004") {
		t.Errorf("Result.Error = %q, want mapped DB004 message", done.Result.Error)
	}
}

func TestService_CommitGatewayPanic(t *testing.T) {
	svc := newTestService(t, panicGateway{}, Options{})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(2, 0))
	done, err := svc.Commit(context.Background(), sess.ID, "tenant-a", nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if done.Stage != StageComplete || done.Result.Failed != 2 || done.Result.Succeeded != 0 {
		t.Errorf("after panic: stage %s result %+v", done.Stage, done.Result)
	}
	if svc.LimiterStatus().Active != 0 {
		t.Error("commit slot was not released after panic")
	}
}

func TestService_CommitDetailedGateway(t *testing.T) {
	gw := &detailedGateway{reject: map[int]string{3: "duplicate phone number"}}
	svc := newTestService(t, gw, Options{})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(4, 0))
	done, err := svc.Commit(context.Background(), sess.ID, "tenant-a", nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if gw.calls != 0 {
		t.Error("CreateMany should not be called when CreateManyDetailed exists")
	}
	if done.Result.Succeeded != 3 || done.Result.Failed != 1 {
		t.Errorf("result = %d/%d, want 3/1", done.Result.Succeeded, done.Result.Failed)
	}
	if len(done.Result.Rejected) != 1 || done.Result.Rejected[0].Row != 3 {
		t.Errorf("rejected = %+v, want row 3", done.Result.Rejected)
	}
}

func TestService_CommitUnknownCampaign(t *testing.T) {
	gw := &fakeGateway{keep: -1}
	other := uuid.New()
	svc := newTestService(t, gw, Options{Campaigns: fakeCampaigns{other: "tenant-b"}})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(2, 0))
	got, err := svc.Commit(context.Background(), sess.ID, "tenant-a", &other)
	if !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("error = %v, want ErrCampaignNotFound", err)
	}
	if got.Stage != StagePreview {
		t.Errorf("stage = %s, want preview", got.Stage)
	}
	if gw.calls != 0 {
		t.Error("gateway called for unknown campaign")
	}
}

func TestService_CommitWhileInFlight(t *testing.T) {
	gw := newBlockingGateway()
	svc := newTestService(t, gw, Options{})
	sess := toPreview(t, svc, "tenant-a", leadsCSV(3, 0))

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		sess ImportSession
		err  error
	}
	first := make(chan outcome, 1)
	go func() {
		s, err := svc.Commit(ctx, sess.ID, "tenant-a", nil)
		first <- outcome{s, err}
	}()

	select {
	case <-gw.started:
	case <-time.After(time.Second):
		t.Fatal("gateway was never called")
	}

	cur, err := svc.Get(context.Background(), sess.ID, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Stage != StageImporting {
		t.Errorf("stage during commit = %s, want importing", cur.Stage)
	}

	if _, err := svc.Commit(context.Background(), sess.ID, "tenant-a", nil); !errors.Is(err, ErrCommitInProgress) {
		t.Errorf("second Commit error = %v, want ErrCommitInProgress", err)
	}
	if _, err := svc.Back(context.Background(), sess.ID, "tenant-a"); !errors.Is(err, ErrCommitInProgress) {
		t.Errorf("Back error = %v, want ErrCommitInProgress", err)
	}
	if err := svc.Delete(context.Background(), sess.ID, "tenant-a"); !errors.Is(err, ErrCommitInProgress) {
		t.Errorf("Delete error = %v, want ErrCommitInProgress", err)
	}
	if removed := svc.Sweep(time.Now().Add(48 * time.Hour)); removed != 0 {
		t.Errorf("Sweep removed %d sessions during a commit", removed)
	}

	// Cancelling the caller does not abandon the commit.
	cancel()
	close(gw.release)

	select {
	case out := <-first:
		if out.err != nil {
			t.Fatalf("Commit: %v", out.err)
		}
		if out.sess.Stage != StageComplete || out.sess.Result.Succeeded != 3 {
			t.Errorf("final state %s %+v", out.sess.Stage, out.sess.Result)
		}
	case <-time.After(time.Second):
		t.Fatal("commit did not finish")
	}
	if gw.ctxErr != nil {
		t.Errorf("gateway context error = %v, want nil", gw.ctxErr)
	}
}

func TestService_CommitLimiterExhausted(t *testing.T) {
	gw := newBlockingGateway()
	svc := newTestService(t, gw, Options{MaxConcurrentCommits: 1, CommitWaitTime: 20 * time.Millisecond})

	a := toPreview(t, svc, "tenant-a", leadsCSV(1, 0))
	b := toPreview(t, svc, "tenant-a", leadsCSV(1, 0))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Commit(context.Background(), a.ID, "tenant-a", nil)
	}()
	<-gw.started

	got, err := svc.Commit(context.Background(), b.ID, "tenant-a", nil)
	if !errors.Is(err, ErrTooManyCommits) {
		t.Fatalf("error = %v, want ErrTooManyCommits", err)
	}
	if got.Stage != StagePreview {
		t.Errorf("stage = %s, want preview", got.Stage)
	}

	close(gw.release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.WaitForCommits(ctx); err != nil {
		t.Errorf("WaitForCommits: %v", err)
	}
}

func TestService_SweepSkipsCommitWaitingForSlot(t *testing.T) {
	gw := newBlockingGateway()
	svc := newTestService(t, gw, Options{MaxConcurrentCommits: 1, CommitWaitTime: 5 * time.Second})

	a := toPreview(t, svc, "tenant-a", leadsCSV(1, 0))
	b := toPreview(t, svc, "tenant-a", leadsCSV(2, 0))

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = svc.Commit(context.Background(), a.ID, "tenant-a", nil)
	}()
	<-gw.started

	type outcome struct {
		sess ImportSession
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		s, err := svc.Commit(context.Background(), b.ID, "tenant-a", nil)
		second <- outcome{s, err}
	}()

	// Wait until the second commit holds its session while queued on the
	// limiter.
	svc.mu.RLock()
	entry := svc.sessions[b.ID]
	svc.mu.RUnlock()
	deadline := time.Now().Add(time.Second)
	for {
		if !entry.mu.TryLock() {
			break
		}
		entry.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("second commit never started")
		}
		time.Sleep(time.Millisecond)
	}
	if got := entry.load().Stage; got != StagePreview {
		t.Fatalf("queued session stage = %s, want preview", got)
	}

	if removed := svc.Sweep(time.Now().Add(48 * time.Hour)); removed != 0 {
		t.Errorf("Sweep removed %d sessions, want 0", removed)
	}

	close(gw.release)
	<-firstDone

	select {
	case out := <-second:
		if out.err != nil {
			t.Fatalf("second Commit: %v", out.err)
		}
		if out.sess.Stage != StageComplete {
			t.Errorf("stage = %s, want complete", out.sess.Stage)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second commit did not finish")
	}

	got, err := svc.Get(context.Background(), b.ID, "tenant-a")
	if err != nil {
		t.Fatalf("session lost after commit: %v", err)
	}
	if got.Result == nil || got.Result.Succeeded != 2 {
		t.Errorf("result = %+v, want 2 succeeded", got.Result)
	}
}

func TestService_CommitSkipsLeadsRefusedByContract(t *testing.T) {
	gw := &detailedGateway{reject: map[int]string{4: "duplicate phone number"}}
	svc := newTestService(t, gw, Options{})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(3, 0))

	// A record the normalizer accepted but the lead contract refuses.
	long := strings.Repeat("x", 300)
	e, err := svc.lookup(sess.ID, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	patched := e.load()
	patched.Records = append([]CandidateRecord(nil), patched.Records...)
	patched.Records[0].FirstName = &long
	e.store(patched)

	done, err := svc.Commit(context.Background(), sess.ID, "tenant-a", nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if done.Stage != StageComplete {
		t.Fatalf("stage = %s, want complete", done.Stage)
	}
	if done.Result.Succeeded != 1 || done.Result.Failed != 2 {
		t.Errorf("result = %d/%d, want 1/2", done.Result.Succeeded, done.Result.Failed)
	}
	if len(done.Result.Rejected) != 2 || done.Result.Rejected[0].Row != 2 || done.Result.Rejected[1].Row != 4 {
		t.Fatalf("rejected = %+v, want rows 2 and 4", done.Result.Rejected)
	}
	if !strings.Contains(done.Result.Rejected[0].Reason, "FirstName") {
		t.Errorf("reason = %q", done.Result.Rejected[0].Reason)
	}
}

func TestService_LongCellsAreRowErrors(t *testing.T) {
	gw := &fakeGateway{keep: -1}
	svc := newTestService(t, gw, Options{})

	csv := "Phone,First Name\n" +
		"555-010-0001,Ada\n" +
		"555-010-0002," + strings.Repeat("n", 300) + "\n" +
		"555-010-0003,Cy\n"
	sess := toPreview(t, svc, "tenant-a", csv)

	preview, err := svc.Preview(context.Background(), sess.ID, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if preview.Summary.ValidCount != 2 || preview.Summary.InvalidCount != 1 {
		t.Errorf("preview counts = %d/%d, want 2/1", preview.Summary.ValidCount, preview.Summary.InvalidCount)
	}

	done, err := svc.Commit(context.Background(), sess.ID, "tenant-a", nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if done.Result.Succeeded != 2 || len(gw.got) != 2 {
		t.Errorf("succeeded = %d, gateway got %d, want 2", done.Result.Succeeded, len(gw.got))
	}
}

func TestService_UploadParseError(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{})
	ctx := context.Background()

	sess, err := svc.StartImport(ctx, "tenant-a", "leads.csv", strings.NewReader(""), nil)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Code != "FILE005" {
		t.Fatalf("error = %v, want FILE005 parse error", err)
	}
	if sess.Stage != StageUpload || sess.LastError == "" {
		t.Errorf("session after parse error: stage %s, last error %q", sess.Stage, sess.LastError)
	}

	stored, err := svc.Get(ctx, sess.ID, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastError != sess.LastError {
		t.Error("diagnostic was not stored on the session")
	}

	// The same session accepts a corrected file.
	fixed, err := svc.Upload(ctx, sess.ID, "tenant-a", "leads.csv", strings.NewReader(leadsCSV(1, 0)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if fixed.Stage != StageMapping || fixed.LastError != "" {
		t.Errorf("after retry: stage %s, last error %q", fixed.Stage, fixed.LastError)
	}
}

func TestService_UpdateMappingAndBack(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{})
	ctx := context.Background()

	sess, err := svc.StartImport(ctx, "tenant-a", "leads.csv", strings.NewReader(leadsCSV(2, 0)), nil)
	if err != nil {
		t.Fatal(err)
	}

	sess, err = svc.UpdateMapping(ctx, sess.ID, "tenant-a", map[Field]string{FieldPhoneNumber: ""})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmMapping(ctx, sess.ID, "tenant-a"); !errors.Is(err, ErrPhoneUnmapped) {
		t.Fatalf("ConfirmMapping error = %v, want ErrPhoneUnmapped", err)
	}

	if _, err := svc.UpdateMapping(ctx, sess.ID, "tenant-a", map[Field]string{FieldPhoneNumber: "Phone"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmMapping(ctx, sess.ID, "tenant-a"); err != nil {
		t.Fatal(err)
	}

	back, err := svc.Back(ctx, sess.ID, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if back.Stage != StageMapping {
		t.Errorf("stage = %s, want mapping", back.Stage)
	}
}

func TestService_TenantIsolation(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{})
	sess := toPreview(t, svc, "tenant-a", leadsCSV(1, 0))
	ctx := context.Background()

	if _, err := svc.Get(ctx, sess.ID, "tenant-b"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get error = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Commit(ctx, sess.ID, "tenant-b", nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Commit error = %v, want ErrSessionNotFound", err)
	}
	if err := svc.Delete(ctx, sess.ID, "tenant-b"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete error = %v, want ErrSessionNotFound", err)
	}
	if _, err := svc.Get(ctx, "missing", "tenant-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get missing error = %v, want ErrSessionNotFound", err)
	}
}

func TestService_CreateSessionLimits(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{MaxSessions: 1})
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, "", nil); !errors.Is(err, ErrMissingTenant) {
		t.Errorf("empty tenant error = %v, want ErrMissingTenant", err)
	}

	first, err := svc.CreateSession(ctx, "tenant-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSession(ctx, "tenant-a", nil); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("error = %v, want ErrTooManySessions", err)
	}

	if err := svc.Delete(ctx, first.ID, "tenant-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSession(ctx, "tenant-a", nil); err != nil {
		t.Errorf("CreateSession after Delete: %v", err)
	}
}

func TestService_Sweep(t *testing.T) {
	clock := &fakeClock{t: testNow}
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{SessionTTL: time.Hour, Now: clock.Now})
	ctx := context.Background()

	old, err := svc.CreateSession(ctx, "tenant-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(45 * time.Minute)
	fresh, err := svc.CreateSession(ctx, "tenant-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Minute)

	if removed := svc.Sweep(clock.Now()); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if _, err := svc.Get(ctx, old.ID, "tenant-a"); !errors.Is(err, ErrSessionNotFound) {
		t.Error("expired session still present")
	}
	if _, err := svc.Get(ctx, fresh.ID, "tenant-a"); err != nil {
		t.Errorf("fresh session removed: %v", err)
	}
}

func TestService_StartSweeperStopsOnCancel(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.StartSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestService_PreviewAndInvalidRows(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{PreviewRowLimit: 2})
	ctx := context.Background()

	sess, err := svc.StartImport(ctx, "tenant-a", "leads.csv", strings.NewReader(leadsCSV(2, 3)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Preview(ctx, sess.ID, "tenant-a"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Preview in mapping error = %v, want ErrInvalidTransition", err)
	}

	if _, err := svc.ConfirmMapping(ctx, sess.ID, "tenant-a"); err != nil {
		t.Fatal(err)
	}

	p, err := svc.Preview(ctx, sess.ID, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if p.Summary.TotalRows != 5 || p.Summary.ValidCount != 2 || p.Summary.InvalidCount != 3 {
		t.Errorf("summary = %+v", p.Summary)
	}
	if len(p.Rows) != 2 || !p.Truncated {
		t.Errorf("rows = %d truncated = %v, want 2 true", len(p.Rows), p.Truncated)
	}

	var buf bytes.Buffer
	if err := svc.WriteInvalidRows(ctx, sess.ID, "tenant-a", &buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("export has %d lines, want header + 3:\n%s", len(lines), buf.String())
	}
	if lines[0] != "_row,_error,First Name,Phone,Email" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "4,Invalid phone: too short,Bad 0,12," {
		t.Errorf("first invalid row = %q", lines[1])
	}
}

func TestService_ResetAfterComplete(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{})
	ctx := context.Background()

	sess := toPreview(t, svc, "tenant-a", leadsCSV(1, 0))
	if _, err := svc.Commit(ctx, sess.ID, "tenant-a", nil); err != nil {
		t.Fatal(err)
	}

	reset, err := svc.Reset(ctx, sess.ID, "tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if reset.ID != sess.ID || reset.Stage != StageUpload || reset.Result != nil {
		t.Errorf("reset session = %+v", reset.Summary())
	}
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *memoryAudit) RecordImport(_ context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memoryAudit) ListImports(_ context.Context, tenantID string, limit int) ([]AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []AuditEntry
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if a.entries[i].TenantID == tenantID {
			out = append(out, a.entries[i])
		}
	}
	return out, nil
}

func TestService_CommitRecordsAudit(t *testing.T) {
	audit := &memoryAudit{}
	svc := newTestService(t, &fakeGateway{keep: 2}, Options{Audit: audit})

	sess := toPreview(t, svc, "tenant-a", leadsCSV(3, 1))
	ctx := ContextWithIPAddress(context.Background(), "203.0.113.7")
	if _, err := svc.Commit(ctx, sess.ID, "tenant-a", nil); err != nil {
		t.Fatal(err)
	}

	history, err := svc.History(context.Background(), "tenant-a", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}
	e := history[0]
	if e.Action != ActionImportCommit || e.Submitted != 3 || e.Succeeded != 2 || e.Failed != 1 {
		t.Errorf("audit entry = %+v", e)
	}
	if e.SessionID != sess.ID || e.FileName != "leads.csv" || e.IPAddress != "203.0.113.7" {
		t.Errorf("audit entry context = %+v", e)
	}

	other, err := svc.History(context.Background(), "tenant-b", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("tenant-b sees %d entries", len(other))
	}
}

func TestService_HistoryWithoutAuditLog(t *testing.T) {
	svc := newTestService(t, &fakeGateway{keep: -1}, Options{})
	got, err := svc.History(context.Background(), "tenant-a", 5)
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("History() = %v, %v; want empty slice", got, err)
	}
}
