package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"idlemine/internal/cashout"
	"idlemine/internal/db"
	"idlemine/internal/economy"
	"idlemine/internal/keylock"
	"idlemine/internal/metrics"
	"idlemine/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBootstrapDisabled   = models.ErrDisabled.WithMessage("admin bootstrap is not configured")
	ErrBootstrapDenied     = errors.New("bootstrap secret mismatch")
	ErrAlreadyBootstrapped = models.ErrConflict.WithMessage("an admin already exists")
)

// Audit actions.
const (
	ActionConfigUpdate = "config.update"
	ActionClaimReject  = "claim.reject"
	ActionBootstrap    = "admin.bootstrap"
	ActionRoundOpen    = "round.open"
	ActionRoundSettle  = "round.settle"
)

type AdminService struct {
	txRunner      db.TxRunner
	configStore   ConfigStore
	configs       *economy.Holder
	claims        ClaimStore
	players       PlayerStore
	admins        AdminStore
	audit         AuditStore
	locks         *keylock.Map
	hub           LedgerHub
	metrics       *metrics.Collector
	logger        logrus.FieldLogger
	bootstrapHash string
	roles         []string

	now func() time.Time
}

func NewAdminService(txRunner db.TxRunner, configStore ConfigStore, configs *economy.Holder, claims ClaimStore, players PlayerStore, admins AdminStore, audit AuditStore, locks *keylock.Map, hub LedgerHub, collector *metrics.Collector, logger logrus.FieldLogger, bootstrapHash string, roles []string) *AdminService {
	return &AdminService{
		txRunner:      txRunner,
		configStore:   configStore,
		configs:       configs,
		claims:        claims,
		players:       players,
		admins:        admins,
		audit:         audit,
		locks:         locks,
		hub:           hub,
		metrics:       collector,
		logger:        logger,
		bootstrapHash: bootstrapHash,
		roles:         roles,
		now:           time.Now,
	}
}

func (s *AdminService) GetConfig() *economy.Config {
	return s.configs.Current()
}

// SetConfig merges patch into the latest stored config, validates the result
// and stores it as a new version. The new version is live on this instance
// as soon as the call returns; others pick it up on their next refresh.
func (s *AdminService) SetConfig(ctx context.Context, actor string, patch []byte) (*economy.Config, error) {
	var stored *economy.Config
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		base, err := s.configStore.LatestForUpdate(ctx, tx)
		if errors.Is(err, models.ErrNotFound) {
			base = s.configs.Current()
		} else if err != nil {
			return err
		}
		next, err := base.Merge(patch)
		if err != nil {
			return err
		}
		stored, err = s.configStore.Insert(ctx, tx, next, actor)
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actor, ActionConfigUpdate, "economy_config", strconv.FormatInt(stored.Version, 10), map[string]any{
			"previous_version": base.Version,
			"patch":            json.RawMessage(patch),
		})
	})
	s.metrics.Operation("set_config", errorCode(err))
	if err != nil {
		return nil, err
	}
	if s.configs.SwapIfNewer(stored) {
		s.metrics.ConfigVersion(stored.Version)
	}
	s.logger.WithFields(logrus.Fields{"actor": actor, "version": stored.Version}).Info("economy config updated")
	return stored, nil
}

// RefreshConfig installs the newest stored config if it is newer than the
// active one. An empty table keeps the current config.
func (s *AdminService) RefreshConfig(ctx context.Context) (bool, error) {
	latest, err := s.configStore.Latest(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !s.configs.SwapIfNewer(latest) {
		return false, nil
	}
	s.metrics.ConfigVersion(latest.Version)
	s.logger.WithField("version", latest.Version).Info("economy config refreshed")
	return true, nil
}

// RejectClaim refunds a pending claim to its player.
func (s *AdminService) RejectClaim(ctx context.Context, actor, claimID, reason string) (*models.CashoutClaim, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.ErrValidation.WithMessage("reason is required")
	}
	peek, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(peek.PlayerID)
	defer unlock()

	now := s.now()
	var rejected *models.CashoutClaim
	var snapshot Snapshot
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		claim, err := s.claims.GetForUpdate(ctx, tx, claimID)
		if err != nil {
			return err
		}
		player, err := s.players.GetForUpdate(ctx, tx, claim.PlayerID)
		if err != nil {
			return err
		}
		if err := cashout.Reject(player, claim, reason, now); err != nil {
			return err
		}
		if err := s.claims.Resolve(ctx, tx, claim); err != nil {
			return err
		}
		if err := s.players.Save(ctx, tx, player); err != nil {
			return err
		}
		rejected = claim
		snapshot = Snapshot{Player: player, ConfigVersion: s.configs.Current().Version}
		return s.audit.Log(ctx, tx, actor, ActionClaimReject, "cashout_claim", claim.ID, map[string]string{
			"player_id": claim.PlayerID,
			"amount":    claim.Amount.String(),
			"reason":    reason,
		})
	})
	s.metrics.Operation("reject_claim", errorCode(err))
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.BroadcastLedger(snapshot.Player.ID, ledgerUpdate("claim_rejected", snapshot))
	}
	return rejected, nil
}

// ListClaims filters by a comma separated status list; empty means all.
func (s *AdminService) ListClaims(ctx context.Context, status string, limit, offset int) ([]models.CashoutClaim, error) {
	var statuses []string
	for _, raw := range strings.Split(status, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch models.ClaimStatus(raw) {
		case models.ClaimPending, models.ClaimSettled, models.ClaimRejected:
			statuses = append(statuses, raw)
		default:
			return nil, models.ErrValidation.WithMessage("unknown claim status %q", raw)
		}
	}
	return s.claims.List(ctx, statuses, limit, offset)
}

func (s *AdminService) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	return s.audit.List(ctx, limit, offset)
}

// Bootstrap makes userID the first super admin when secret matches the
// configured bcrypt hash. It only succeeds while no admin exists.
func (s *AdminService) Bootstrap(ctx context.Context, userID, secret string) error {
	if s.bootstrapHash == "" {
		return ErrBootstrapDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.bootstrapHash), []byte(secret)); err != nil {
		return ErrBootstrapDenied
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := s.admins.HasAnyAdmin(ctx, tx)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyBootstrapped
		}
		if err := s.admins.CreateAdmin(ctx, tx, userID, true, nil); err != nil {
			return err
		}
		for _, role := range s.roles {
			if err := s.admins.GrantRole(ctx, tx, userID, role); err != nil {
				return err
			}
		}
		return s.audit.Log(ctx, tx, userID, ActionBootstrap, "admin", userID, map[string]any{"roles": s.roles})
	})
	if err != nil {
		return err
	}
	s.logger.WithField("user_id", userID).Info("bootstrapped super admin")
	return nil
}
