package protocol

import (
	"errors"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/gogpu/compositor/commit"
)

type fatalRecorder struct {
	errs []*Error
}

func (r *fatalRecorder) record(e *Error) { r.errs = append(r.errs, e) }

func newTestClient(t *testing.T) (*Client, *commit.FIFOManager, *clock.Mock, *fatalRecorder) {
	t.Helper()
	mock := clock.NewMock()
	fifo := commit.NewFIFOManager(mock, nil)
	tearing := commit.NewTearingManager(nil)
	rec := &fatalRecorder{}
	c, err := NewClient(ClientConfig{FIFO: fifo, Tearing: tearing, OnFatal: rec.record})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, fifo, mock, rec
}

// protoErr asserts err carries a *Error with the given code.
func protoErr(t *testing.T, err error, code Code) *Error {
	t.Helper()
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *protocol.Error", err)
	}
	if pe.Code != code {
		t.Fatalf("code = %v, want %v", pe.Code, code)
	}
	return pe
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		code  Code
		str   string
		fatal bool
	}{
		{CodeAlreadyExists, "already_exists", true},
		{CodeTargetDestroyed, "target_destroyed", false},
		{CodeInvalidArgument, "invalid_argument", true},
		{Code(42), "code(42)", true},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.str {
			t.Errorf("Code(%d).String() = %q, want %q", uint32(tt.code), got, tt.str)
		}
		e := &Error{Code: tt.code, Message: "boom"}
		if got := e.Fatal(); got != tt.fatal {
			t.Errorf("Error{%v}.Fatal() = %v, want %v", tt.code, got, tt.fatal)
		}
	}
	e := &Error{Code: CodeAlreadyExists, Message: "surface taken"}
	want := "protocol: surface taken (already_exists)"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewClientValidation(t *testing.T) {
	mock := clock.NewMock()
	fifo := commit.NewFIFOManager(mock, nil)
	tearing := commit.NewTearingManager(nil)

	if _, err := NewClient(ClientConfig{Tearing: tearing}); err == nil {
		t.Error("NewClient without FIFO manager succeeded")
	}
	if _, err := NewClient(ClientConfig{FIFO: fifo}); err == nil {
		t.Error("NewClient without tearing manager succeeded")
	}
	c, err := NewClient(ClientConfig{FIFO: fifo, Tearing: tearing})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Dead() {
		t.Error("fresh client reports dead")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	c, _, _, rec := newTestClient(t)
	a := commit.NewSurface("a", nil)
	b := commit.NewSurface("b", nil)

	tx, err := c.CreateTransaction()
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := tx.Add(a); err != nil {
		t.Fatalf("Add(a): %v", err)
	}
	if err := tx.Add(b); err != nil {
		t.Fatalf("Add(b): %v", err)
	}
	if got := tx.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if a.FenceCount() != 1 || b.FenceCount() != 1 {
		t.Fatalf("fence counts = %d, %d, want 1, 1", a.FenceCount(), b.FenceCount())
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if a.FenceCount() != 0 || b.FenceCount() != 0 {
		t.Errorf("fences survive commit: %d, %d", a.FenceCount(), b.FenceCount())
	}

	// The handle is spent; reuse is a recoverable error, not a
	// violation.
	protoErr(t, tx.Commit(), CodeTargetDestroyed)
	protoErr(t, tx.Add(a), CodeTargetDestroyed)
	if c.Dead() {
		t.Error("spent-handle reuse killed the client")
	}
	if len(rec.errs) != 0 {
		t.Errorf("OnFatal fired %d times, want 0", len(rec.errs))
	}
}

func TestTransactionExclusivityIsFatal(t *testing.T) {
	c, _, _, rec := newTestClient(t)
	s := commit.NewSurface("shared", nil)

	tx1, err := c.CreateTransaction()
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := tx1.Add(s); err != nil {
		t.Fatalf("tx1.Add: %v", err)
	}
	tx2, err := c.CreateTransaction()
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	pe := protoErr(t, tx2.Add(s), CodeAlreadyExists)
	if !pe.Fatal() {
		t.Error("exclusivity violation is not fatal")
	}
	if !c.Dead() {
		t.Error("client survives exclusivity violation")
	}
	if len(rec.errs) != 1 || rec.errs[0].Code != CodeAlreadyExists {
		t.Fatalf("OnFatal calls = %+v, want one already_exists", rec.errs)
	}

	// The first transaction's fence is untouched by the violation.
	if got := s.FenceCount(); got != 1 {
		t.Errorf("FenceCount() = %d, want 1", got)
	}

	// Every further request fails without reaching the managers, and
	// OnFatal does not fire again.
	if _, err := c.CreateTransaction(); !errors.Is(err, ErrClientDead) {
		t.Errorf("CreateTransaction on dead client = %v, want ErrClientDead", err)
	}
	if _, err := c.RequestFIFOBarrier(s); !errors.Is(err, ErrClientDead) {
		t.Errorf("RequestFIFOBarrier on dead client = %v, want ErrClientDead", err)
	}
	if _, err := c.CreateTearingControl(s); !errors.Is(err, ErrClientDead) {
		t.Errorf("CreateTearingControl on dead client = %v, want ErrClientDead", err)
	}
	if err := tx1.Commit(); !errors.Is(err, ErrClientDead) {
		t.Errorf("Commit on dead client = %v, want ErrClientDead", err)
	}
	if len(rec.errs) != 1 {
		t.Errorf("OnFatal fired %d times, want 1", len(rec.errs))
	}
}

func TestTransactionAddDestroyedSurface(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	s := commit.NewSurface("doomed", nil)
	tx, err := c.CreateTransaction()
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	s.Destroy()

	protoErr(t, tx.Add(s), CodeTargetDestroyed)
	protoErr(t, tx.Add(nil), CodeTargetDestroyed)
	if c.Dead() {
		t.Error("racing surface destruction killed the client")
	}
}

func TestFIFOBarrierExclusive(t *testing.T) {
	c, fifo, _, rec := newTestClient(t)
	s := commit.NewSurface("paced", nil)

	b, err := c.RequestFIFOBarrier(s)
	if err != nil {
		t.Fatalf("RequestFIFOBarrier: %v", err)
	}
	if b.Satisfied() {
		t.Fatal("fresh barrier already satisfied")
	}
	if got := fifo.Outstanding(); got != 1 {
		t.Fatalf("Outstanding() = %d, want 1", got)
	}

	_, err = c.RequestFIFOBarrier(s)
	pe := protoErr(t, err, CodeAlreadyExists)
	if !pe.Fatal() || !c.Dead() {
		t.Error("second live barrier did not kill the client")
	}
	if len(rec.errs) != 1 {
		t.Errorf("OnFatal fired %d times, want 1", len(rec.errs))
	}
}

func TestFIFOBarrierReplaceAfterSatisfied(t *testing.T) {
	c, fifo, mock, _ := newTestClient(t)
	s := commit.NewSurface("paced", nil)

	b1, err := c.RequestFIFOBarrier(s)
	if err != nil {
		t.Fatalf("RequestFIFOBarrier: %v", err)
	}

	// No output: the fallback timer resolves the barrier.
	mock.Add(commit.FallbackPeriod)
	if !b1.Satisfied() {
		t.Fatal("fallback did not satisfy the barrier")
	}

	b2, err := c.RequestFIFOBarrier(s)
	if err != nil {
		t.Fatalf("RequestFIFOBarrier after satisfaction: %v", err)
	}
	if b2 == b1 {
		t.Fatal("satisfied barrier was handed out again")
	}
	if b2.Satisfied() {
		t.Error("replacement barrier already satisfied")
	}
	if got := fifo.Outstanding(); got != 1 {
		t.Errorf("Outstanding() = %d, want 1", got)
	}
	if c.Dead() {
		t.Error("re-request after satisfaction killed the client")
	}
}

func TestFIFOBarrierDestroyReleasesFence(t *testing.T) {
	c, fifo, _, _ := newTestClient(t)
	s := commit.NewSurface("paced", nil)

	b, err := c.RequestFIFOBarrier(s)
	if err != nil {
		t.Fatalf("RequestFIFOBarrier: %v", err)
	}
	b.Destroy()
	b.Destroy()

	if got := fifo.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
	if got := s.FenceCount(); got != 0 {
		t.Errorf("FenceCount() = %d, want 0", got)
	}
	if _, err := c.RequestFIFOBarrier(s); err != nil {
		t.Errorf("RequestFIFOBarrier after destroy: %v", err)
	}
	if c.Dead() {
		t.Error("destroy-and-recreate killed the client")
	}
}

func TestFIFOBarrierDestroyedSurface(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	s := commit.NewSurface("doomed", nil)
	s.Destroy()

	_, err := c.RequestFIFOBarrier(s)
	protoErr(t, err, CodeTargetDestroyed)
	if c.Dead() {
		t.Error("racing surface destruction killed the client")
	}
}

func TestTearingControlFlow(t *testing.T) {
	c, _, _, rec := newTestClient(t)
	s := commit.NewSurface("game", nil)

	tc, err := c.CreateTearingControl(s)
	if err != nil {
		t.Fatalf("CreateTearingControl: %v", err)
	}
	if err := tc.SetHint(commit.TearingHintAsync); err != nil {
		t.Fatalf("SetHint(async): %v", err)
	}
	if !s.TearingAllowed() {
		t.Error("async hint did not reach the surface")
	}

	pe := protoErr(t, tc.SetHint(commit.TearingHint(7)), CodeInvalidArgument)
	if !pe.Fatal() || !c.Dead() {
		t.Error("out-of-domain hint did not kill the client")
	}
	if len(rec.errs) != 1 || rec.errs[0].Code != CodeInvalidArgument {
		t.Fatalf("OnFatal calls = %+v, want one invalid_argument", rec.errs)
	}
	if err := tc.SetHint(commit.TearingHintVSync); !errors.Is(err, ErrClientDead) {
		t.Errorf("SetHint on dead client = %v, want ErrClientDead", err)
	}
}

func TestTearingControlExclusiveAcrossClients(t *testing.T) {
	mock := clock.NewMock()
	fifo := commit.NewFIFOManager(mock, nil)
	tearing := commit.NewTearingManager(nil)
	s := commit.NewSurface("contended", nil)

	c1, err := NewClient(ClientConfig{FIFO: fifo, Tearing: tearing})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c2, err := NewClient(ClientConfig{FIFO: fifo, Tearing: tearing})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c1.CreateTearingControl(s); err != nil {
		t.Fatalf("c1.CreateTearingControl: %v", err)
	}
	_, err = c2.CreateTearingControl(s)
	protoErr(t, err, CodeAlreadyExists)

	// Only the offender dies.
	if !c2.Dead() {
		t.Error("offending client survives")
	}
	if c1.Dead() {
		t.Error("innocent client killed")
	}
}

func TestClientCloseReleasesEverything(t *testing.T) {
	c, fifo, _, _ := newTestClient(t)
	tearing := c.tearing
	a := commit.NewSurface("a", nil)
	b := commit.NewSurface("b", nil)

	tx, err := c.CreateTransaction()
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := tx.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := c.RequestFIFOBarrier(b); err != nil {
		t.Fatalf("RequestFIFOBarrier: %v", err)
	}
	tc, err := c.CreateTearingControl(b)
	if err != nil {
		t.Fatalf("CreateTearingControl: %v", err)
	}
	if err := tc.SetHint(commit.TearingHintAsync); err != nil {
		t.Fatalf("SetHint: %v", err)
	}

	c.Close()
	c.Close()

	if got := a.FenceCount(); got != 0 {
		t.Errorf("transaction fence survives close: FenceCount() = %d", got)
	}
	if got := b.FenceCount(); got != 0 {
		t.Errorf("barrier fence survives close: FenceCount() = %d", got)
	}
	if got := fifo.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
	if got := tearing.Len(); got != 0 {
		t.Errorf("tearing controls survive close: Len() = %d", got)
	}
	if b.TearingAllowed() {
		t.Error("tearing hint survives close")
	}
	if !c.Dead() {
		t.Error("closed client reports alive")
	}
	if _, err := c.CreateTransaction(); !errors.Is(err, ErrClientDead) {
		t.Errorf("CreateTransaction after close = %v, want ErrClientDead", err)
	}
}
