package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"idlemine/internal/economy"
	"idlemine/internal/keylock"
	"idlemine/internal/logging"
	"idlemine/internal/models"

	"golang.org/x/crypto/bcrypt"
)

type adminFixture struct {
	svc     *AdminService
	holder  *economy.Holder
	players *memPlayerStore
	audit   *recordingAuditStore
}

func newAdminFixture(configStore ConfigStore, claims ClaimStore, admins AdminStore, bootstrapHash string) adminFixture {
	holder := economy.NewHolder(economy.Default())
	players := newMemPlayerStore()
	audit := &recordingAuditStore{}
	svc := NewAdminService(fakeTxRunner{}, configStore, holder, claims, players, admins, audit, keylock.New(), nil, nil, logging.Discard(), bootstrapHash, []string{"config_editor", "claims_reviewer"})
	svc.now = func() time.Time { return testNow }
	return adminFixture{svc: svc, holder: holder, players: players, audit: audit}
}

func versionedInsert(version int64) func(context.Context, *economy.Config, string) (*economy.Config, error) {
	return func(_ context.Context, cfg *economy.Config, _ string) (*economy.Config, error) {
		stored := cfg.Clone()
		stored.Version = version
		return stored, nil
	}
}

func TestSetConfigMergesAndPublishes(t *testing.T) {
	var author string
	configStore := stubConfigStore{
		latestForUpdateFn: func(context.Context) (*economy.Config, error) {
			return nil, models.ErrNotFound
		},
		insertFn: func(ctx context.Context, cfg *economy.Config, createdBy string) (*economy.Config, error) {
			author = createdBy
			return versionedInsert(1)(ctx, cfg, createdBy)
		},
	}
	fx := newAdminFixture(configStore, stubClaimStore{}, stubAdminStore{}, "")

	stored, err := fx.svc.SetConfig(context.Background(), "admin-1", []byte(`{"cashout":{"minimum_diamonds_required":25}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Version != 1 || !stored.Cashout.MinimumDiamondsRequired.Equal(dec("25")) {
		t.Fatalf("unexpected stored config: v%d min=%s", stored.Version, stored.Cashout.MinimumDiamondsRequired)
	}
	if !stored.Treasury.PayoutPercentage.Equal(dec("0.5")) {
		t.Fatalf("untouched fields must survive the merge")
	}
	if fx.holder.Current().Version != 1 || author != "admin-1" {
		t.Fatalf("new version not published")
	}
	if len(fx.audit.calls) != 1 || fx.audit.calls[0].action != ActionConfigUpdate {
		t.Fatalf("expected audit entry, got %+v", fx.audit.calls)
	}
}

func TestSetConfigRejectsInvalidPatch(t *testing.T) {
	inserted := false
	configStore := stubConfigStore{
		latestForUpdateFn: func(context.Context) (*economy.Config, error) {
			cfg := economy.Default()
			cfg.Version = 4
			return cfg, nil
		},
		insertFn: func(context.Context, *economy.Config, string) (*economy.Config, error) {
			inserted = true
			return nil, nil
		},
	}
	fx := newAdminFixture(configStore, stubClaimStore{}, stubAdminStore{}, "")

	_, err := fx.svc.SetConfig(context.Background(), "admin-1", []byte(`{"treasury":{"payout_percentage":1.5}}`))
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var fieldErr *economy.ValidationError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "treasury.payout_percentage" {
		t.Fatalf("expected field path, got %v", err)
	}
	if inserted || fx.holder.Current().Version != 0 {
		t.Fatalf("invalid patch must not be stored or published")
	}
}

func TestRefreshConfigOnlyInstallsNewer(t *testing.T) {
	latest := economy.Default()
	latest.Version = 3
	configStore := stubConfigStore{
		latestFn: func(context.Context) (*economy.Config, error) { return latest, nil },
	}
	fx := newAdminFixture(configStore, stubClaimStore{}, stubAdminStore{}, "")

	swapped, err := fx.svc.RefreshConfig(context.Background())
	if err != nil || !swapped || fx.holder.Current().Version != 3 {
		t.Fatalf("expected v3 to install, got swapped=%v err=%v", swapped, err)
	}
	swapped, err = fx.svc.RefreshConfig(context.Background())
	if err != nil || swapped {
		t.Fatalf("same version must not swap again")
	}
}

func TestRefreshConfigEmptyTable(t *testing.T) {
	configStore := stubConfigStore{
		latestFn: func(context.Context) (*economy.Config, error) { return nil, models.ErrNotFound },
	}
	fx := newAdminFixture(configStore, stubClaimStore{}, stubAdminStore{}, "")
	if swapped, err := fx.svc.RefreshConfig(context.Background()); err != nil || swapped {
		t.Fatalf("empty table keeps defaults, got %v %v", swapped, err)
	}
}

func TestRejectClaimRefundsPlayer(t *testing.T) {
	claim := &models.CashoutClaim{ID: "c-1", PlayerID: "p-1", Amount: dec("12"), Status: models.ClaimPending}
	var resolved *models.CashoutClaim
	claims := stubClaimStore{
		getFn: func(context.Context, string) (*models.CashoutClaim, error) {
			copied := *claim
			return &copied, nil
		},
		resolveFn: func(_ context.Context, c *models.CashoutClaim) error {
			resolved = c
			return nil
		},
	}
	fx := newAdminFixture(stubConfigStore{}, claims, stubAdminStore{}, "")
	until := testNow.Add(48 * time.Hour)
	player := playerWithDrill(testNow, "0")
	player.CashoutCooldownUntil = &until
	fx.players = newMemPlayerStore(player)
	fx.svc.players = fx.players

	rejected, err := fx.svc.RejectClaim(context.Background(), "admin-1", "c-1", "duplicate account")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Status != models.ClaimRejected || resolved == nil || *resolved.RejectReason != "duplicate account" {
		t.Fatalf("unexpected claim: %+v", rejected)
	}
	stored := fx.players.get("p-1")
	if !stored.Diamonds.Equal(dec("12")) {
		t.Fatalf("diamonds not refunded: %s", stored.Diamonds)
	}
	if stored.CashoutCooldownUntil == nil || !stored.CashoutCooldownUntil.Equal(until) {
		t.Fatalf("cooldown must be kept on reject")
	}
	if len(fx.audit.calls) != 1 || fx.audit.calls[0].action != ActionClaimReject {
		t.Fatalf("expected audit entry, got %+v", fx.audit.calls)
	}
}

func TestRejectClaimValidation(t *testing.T) {
	fx := newAdminFixture(stubConfigStore{}, stubClaimStore{}, stubAdminStore{}, "")
	if _, err := fx.svc.RejectClaim(context.Background(), "admin-1", "c-1", "  "); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	settled := stubClaimStore{
		getFn: func(context.Context, string) (*models.CashoutClaim, error) {
			return &models.CashoutClaim{ID: "c-1", PlayerID: "p-1", Status: models.ClaimSettled}, nil
		},
	}
	fx = newAdminFixture(stubConfigStore{}, settled, stubAdminStore{}, "")
	fx.svc.players = newMemPlayerStore(playerWithDrill(testNow, "0"))
	if _, err := fx.svc.RejectClaim(context.Background(), "admin-1", "c-1", "late"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected conflict for settled claim, got %v", err)
	}
}

func TestListClaimsParsesStatuses(t *testing.T) {
	var got []string
	claims := stubClaimStore{
		listFn: func(_ context.Context, statuses []string, limit, offset int) ([]models.CashoutClaim, error) {
			got = statuses
			return []models.CashoutClaim{}, nil
		},
	}
	fx := newAdminFixture(stubConfigStore{}, claims, stubAdminStore{}, "")

	if _, err := fx.svc.ListClaims(context.Background(), "pending, rejected", 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "pending" || got[1] != "rejected" {
		t.Fatalf("unexpected statuses: %v", got)
	}
	if _, err := fx.svc.ListClaims(context.Background(), "paid", 10, 0); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBootstrap(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("let-me-in"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	t.Run("disabled without hash", func(t *testing.T) {
		fx := newAdminFixture(stubConfigStore{}, stubClaimStore{}, stubAdminStore{}, "")
		if err := fx.svc.Bootstrap(context.Background(), "u-1", "let-me-in"); !errors.Is(err, models.ErrDisabled) {
			t.Fatalf("expected disabled, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		fx := newAdminFixture(stubConfigStore{}, stubClaimStore{}, stubAdminStore{}, string(hash))
		if err := fx.svc.Bootstrap(context.Background(), "u-1", "guess"); !errors.Is(err, ErrBootstrapDenied) {
			t.Fatalf("expected denied, got %v", err)
		}
	})

	t.Run("already bootstrapped", func(t *testing.T) {
		admins := stubAdminStore{hasAnyAdminFn: func(context.Context) (bool, error) { return true, nil }}
		fx := newAdminFixture(stubConfigStore{}, stubClaimStore{}, admins, string(hash))
		if err := fx.svc.Bootstrap(context.Background(), "u-1", "let-me-in"); !errors.Is(err, models.ErrConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("creates super admin with roles", func(t *testing.T) {
		var created string
		var granted []string
		admins := stubAdminStore{
			createFn: func(_ context.Context, userID string, isSuper bool) error {
				if !isSuper {
					t.Fatalf("bootstrap admin must be super")
				}
				created = userID
				return nil
			},
			grantFn: func(_ context.Context, _ string, role string) error {
				granted = append(granted, role)
				return nil
			},
		}
		fx := newAdminFixture(stubConfigStore{}, stubClaimStore{}, admins, string(hash))
		if err := fx.svc.Bootstrap(context.Background(), "u-1", "let-me-in"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if created != "u-1" || len(granted) != 2 {
			t.Fatalf("unexpected bootstrap: created=%s granted=%v", created, granted)
		}
	})
}
