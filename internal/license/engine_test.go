package license

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/min-zu/license-server-sub000/internal/db"
	"github.com/min-zu/license-server-sub000/internal/models"
	"github.com/rs/zerolog"
)

// fakeStore implements Store in memory for engine tests.
type fakeStore struct {
	records       map[string]*models.LicenseRecord
	attempts      []*models.ReauthAttempt
	touches       int
	lookupErr     error
	touchErr      error
	issueErr      error
	casLoses      bool
	lastIssuedKey *string
}

func newFakeStore(recs ...*models.LicenseRecord) *fakeStore {
	s := &fakeStore{records: map[string]*models.LicenseRecord{}}
	for _, r := range recs {
		s.records[r.HardwareCode] = r
	}
	return s
}

func (s *fakeStore) GetLicenseByHardwareCode(_ context.Context, code string) (*models.LicenseRecord, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if r, ok := s.records[code]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) TouchLicenseCheckIn(_ context.Context, code, initCode, ip string, at time.Time) error {
	if s.touchErr != nil {
		return s.touchErr
	}
	s.touches++
	if r, ok := s.records[code]; ok {
		r.InitCode = initCode
		r.IP = ip
		r.LicenseDate = &at
	}
	return nil
}

func (s *fakeStore) IssueLicenseKey(_ context.Context, code string, key *string, start, end *time.Time, at time.Time) (bool, error) {
	if s.issueErr != nil {
		return false, s.issueErr
	}
	if s.casLoses {
		return false, nil
	}
	r, ok := s.records[code]
	if !ok || !r.Unissued() {
		return false, nil
	}
	r.AuthCode = key
	r.Process = models.ProcessActive
	r.LicenseDate = &at
	if start != nil {
		r.LimitStart = start
	}
	if end != nil {
		r.LimitEnd = end
	}
	s.lastIssuedKey = key
	return true, nil
}

func (s *fakeStore) CreateReauthAttempt(_ context.Context, a *models.ReauthAttempt) error {
	s.attempts = append(s.attempts, a)
	return nil
}

// fakeGenerator implements KeyGenerator with a canned result.
type fakeGenerator struct {
	key   *string
	err   error
	calls int
	last  *models.LicenseRecord
}

func (g *fakeGenerator) IssueKey(_ context.Context, rec *models.LicenseRecord) (*string, error) {
	g.calls++
	copied := *rec
	g.last = &copied
	return g.key, g.err
}

func strptr(s string) *string { return &s }

func ituRecord(code string, f models.FeatureFlags) *models.LicenseRecord {
	rec := models.NewLicenseRecord(code, models.FamilyITU)
	rec.Features = f
	return rec
}

func TestEngineCheckIn(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown device never mutates the store", func(t *testing.T) {
		store := newFakeStore()
		gen := &fakeGenerator{}
		engine := NewEngine(store, gen, zerolog.Nop())

		_, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: "ITU999"})
		if !errors.Is(err, ErrUnknownDevice) {
			t.Fatalf("err = %v, want ErrUnknownDevice", err)
		}
		if store.touches != 0 {
			t.Errorf("touches = %d, want 0", store.touches)
		}
		if gen.calls != 0 {
			t.Errorf("generator calls = %d, want 0", gen.calls)
		}
	})

	t.Run("lookup failure is not an unknown device", func(t *testing.T) {
		store := newFakeStore()
		store.lookupErr = errors.New("connection refused")
		gen := &fakeGenerator{}
		engine := NewEngine(store, gen, zerolog.Nop())

		_, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: "ITU000000000000000000001"})
		if err == nil {
			t.Fatal("expected an error")
		}
		if errors.Is(err, ErrUnknownDevice) {
			t.Fatalf("err = %v, store outage must not look like an unregistered device", err)
		}
		if gen.calls != 0 {
			t.Errorf("generator calls = %d, want 0", gen.calls)
		}
	})

	t.Run("first check-in issues a key", func(t *testing.T) {
		rec := ituRecord("ITU000000000000000000001", models.FeatureFlags{Firewall: true, VPN: true})
		store := newFakeStore(rec)
		gen := &fakeGenerator{key: strptr("KEY-ABC123")}
		engine := NewEngine(store, gen, zerolog.Nop())

		result, err := engine.CheckIn(ctx, CheckInRequest{
			HardwareCode: rec.HardwareCode,
			InitCode:     "HW-INIT-1",
			IP:           "10.0.0.5",
		})
		if err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
		if result.LicenseKey == nil || *result.LicenseKey != "KEY-ABC123" {
			t.Errorf("license key = %v, want KEY-ABC123", result.LicenseKey)
		}
		if gen.calls != 1 {
			t.Errorf("generator calls = %d, want 1", gen.calls)
		}
		if gen.last.InitCode != "HW-INIT-1" {
			t.Errorf("generator saw init code %q, want HW-INIT-1", gen.last.InitCode)
		}
		if mask := ITUFeatureMask(gen.last.Features); mask != 3 {
			t.Errorf("generator saw mask %d, want 3", mask)
		}
		stored := store.records[rec.HardwareCode]
		if stored.AuthCode == nil || *stored.AuthCode != "KEY-ABC123" {
			t.Errorf("stored auth code = %v, want KEY-ABC123", stored.AuthCode)
		}
		if len(store.attempts) != 0 {
			t.Errorf("reauth attempts = %d, want 0", len(store.attempts))
		}
	})

	t.Run("second check-in conflicts and appends one audit row", func(t *testing.T) {
		rec := ituRecord("ITU000000000000000000001", models.FeatureFlags{Firewall: true})
		store := newFakeStore(rec)
		gen := &fakeGenerator{key: strptr("KEY-FIRST")}
		engine := NewEngine(store, gen, zerolog.Nop())

		if _, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode, InitCode: "A"}); err != nil {
			t.Fatalf("first CheckIn() error = %v", err)
		}

		_, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode, InitCode: "B"})
		if !errors.Is(err, ErrIssuanceConflict) {
			t.Fatalf("err = %v, want ErrIssuanceConflict", err)
		}
		if len(store.attempts) != 1 {
			t.Fatalf("reauth attempts = %d, want 1", len(store.attempts))
		}
		if store.attempts[0].InitCode != "B" {
			t.Errorf("attempt init code = %q, want B", store.attempts[0].InitCode)
		}
		stored := store.records[rec.HardwareCode]
		if stored.AuthCode == nil || *stored.AuthCode != "KEY-FIRST" {
			t.Errorf("auth code changed on conflict: %v", stored.AuthCode)
		}
		// Conflicting check-in still refreshed the last-seen fields.
		if stored.InitCode != "B" {
			t.Errorf("init code = %q, want refreshed to B", stored.InitCode)
		}
		if gen.calls != 1 {
			t.Errorf("generator calls = %d, want 1", gen.calls)
		}
	})

	t.Run("generator failure leaves record unissued", func(t *testing.T) {
		rec := ituRecord("ITU000000000000000000002", models.FeatureFlags{})
		store := newFakeStore(rec)
		gen := &fakeGenerator{err: ErrGeneratorFailed}
		engine := NewEngine(store, gen, zerolog.Nop())

		_, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode})
		if !errors.Is(err, ErrGeneratorFailed) {
			t.Fatalf("err = %v, want ErrGeneratorFailed", err)
		}
		if !store.records[rec.HardwareCode].Unissued() {
			t.Error("record should remain unissued after generator failure")
		}
		// Last-seen refresh is committed even when issuance fails.
		if store.touches != 1 {
			t.Errorf("touches = %d, want 1", store.touches)
		}
	})

	t.Run("unknown family issues with nil key", func(t *testing.T) {
		rec := models.NewLicenseRecord("XTM-UNSEGMENTED", models.FamilyXTM)
		store := newFakeStore(rec)
		gen := &fakeGenerator{key: nil}
		engine := NewEngine(store, gen, zerolog.Nop())

		result, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode})
		if err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
		if result.LicenseKey != nil {
			t.Errorf("license key = %v, want nil", result.LicenseKey)
		}
		stored := store.records[rec.HardwareCode]
		if stored.Unissued() {
			t.Error("record should have left the unissued state")
		}
		if stored.AuthCode != nil {
			t.Errorf("auth code = %v, want nil", stored.AuthCode)
		}
	})

	t.Run("losing the conditional update is a conflict", func(t *testing.T) {
		rec := ituRecord("ITU000000000000000000003", models.FeatureFlags{})
		store := newFakeStore(rec)
		store.casLoses = true
		gen := &fakeGenerator{key: strptr("KEY-RACE")}
		engine := NewEngine(store, gen, zerolog.Nop())

		_, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode})
		if !errors.Is(err, ErrIssuanceConflict) {
			t.Fatalf("err = %v, want ErrIssuanceConflict", err)
		}
		if len(store.attempts) != 1 {
			t.Errorf("reauth attempts = %d, want 1", len(store.attempts))
		}
	})

	t.Run("absent init code stored as placeholder", func(t *testing.T) {
		rec := ituRecord("ITU000000000000000000004", models.FeatureFlags{})
		store := newFakeStore(rec)
		gen := &fakeGenerator{key: strptr("K")}
		engine := NewEngine(store, gen, zerolog.Nop())

		if _, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode}); err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
		if got := store.records[rec.HardwareCode].InitCode; got != models.InitCodePlaceholder {
			t.Errorf("init code = %q, want %q", got, models.InitCodePlaceholder)
		}
	})

	t.Run("demo window stamped on ITU first contact without window", func(t *testing.T) {
		rec := ituRecord("ITU000000000000000000005", models.FeatureFlags{})
		store := newFakeStore(rec)
		gen := &fakeGenerator{key: strptr("K")}
		engine := NewEngine(store, gen, zerolog.Nop())

		before := time.Now()
		if _, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode}); err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
		stored := store.records[rec.HardwareCode]
		if stored.LimitStart == nil || stored.LimitEnd == nil {
			t.Fatal("demo window not stamped")
		}
		wantEnd := before.AddDate(0, 1, 0)
		if stored.LimitEnd.Before(wantEnd.Add(-time.Minute)) || stored.LimitEnd.After(wantEnd.Add(time.Minute)) {
			t.Errorf("window end = %v, want about %v", stored.LimitEnd, wantEnd)
		}
	})

	t.Run("administrator-set window is untouched", func(t *testing.T) {
		rec := ituRecord("ITU000000000000000000006", models.FeatureFlags{})
		end := time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)
		start := end.AddDate(-1, 0, 0)
		rec.LimitStart = &start
		rec.LimitEnd = &end
		store := newFakeStore(rec)
		gen := &fakeGenerator{key: strptr("K")}
		engine := NewEngine(store, gen, zerolog.Nop())

		if _, err := engine.CheckIn(ctx, CheckInRequest{HardwareCode: rec.HardwareCode}); err != nil {
			t.Fatalf("CheckIn() error = %v", err)
		}
		stored := store.records[rec.HardwareCode]
		if !stored.LimitEnd.Equal(end) {
			t.Errorf("window end = %v, want %v unchanged", stored.LimitEnd, end)
		}
	})
}
