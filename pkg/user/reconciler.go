package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Result is the user-facing outcome of an identity link attempt. Rejections
// (already linked elsewhere, merge conflict) are reported here, not as
// errors; errors are reserved for storage failures.
type Result struct {
	OK      bool
	Message string
}

// Reconciler merges two platform-specific user records into one canonical
// record. The merge path runs inside a single transaction: either every
// dependent row is re-pointed and the secondary row removed, or nothing
// changes.
type Reconciler struct {
	repo Repo
}

func NewReconciler(repo Repo) *Reconciler {
	return &Reconciler{repo: repo}
}

// LinkIdentities attaches a Telegram identity and a Max identity to one
// user record. The Telegram side initiates the link, so on a merge the row
// matched by the Telegram id survives as primary.
func (r *Reconciler) LinkIdentities(ctx context.Context, tgID, maxID int64) (Result, error) {
	if tgID == 0 || maxID == 0 {
		return Result{Message: "Both platform ids are required."}, nil
	}

	byTg, err := r.repo.FindByPlatformID(ctx, Telegram, tgID)
	tgExists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Result{}, err
	}
	byMax, err := r.repo.FindByPlatformID(ctx, Max, maxID)
	maxExists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Result{}, err
	}

	if tgExists && byTg.MaxID != 0 && byTg.MaxID != maxID {
		return Result{Message: "This Telegram account is already linked to a different Max account."}, nil
	}
	if maxExists && byMax.TelegramID != 0 && byMax.TelegramID != tgID {
		return Result{Message: "This Max account is already linked to a different Telegram account."}, nil
	}
	if tgExists && maxExists && byTg.ID == byMax.ID {
		return Result{OK: true, Message: "Accounts are already linked."}, nil
	}

	var linked User
	err = r.repo.WithTransaction(ctx, func(repo Repo) error {
		switch {
		case tgExists && maxExists:
			linked, err = mergeRows(ctx, repo, byTg, byMax)
			return err
		case tgExists:
			byTg.MaxID = maxID
			linked = byTg
			return repo.UpdateUser(ctx, byTg.ID, byTg)
		case maxExists:
			byMax.TelegramID = tgID
			linked = byMax
			return repo.UpdateUser(ctx, byMax.ID, byMax)
		default:
			linked = User{TelegramID: tgID, MaxID: maxID, IsActive: true}
			id, err := repo.CreateUser(ctx, linked)
			if err != nil {
				return err
			}
			linked.ID = id
			return nil
		}
	})
	if err != nil {
		if isConflict(err) {
			log.Warnf("identity link conflict for tg=%d max=%d: %v", tgID, maxID, err)
			return Result{Message: "Could not link accounts: the identities are in use."}, nil
		}
		return Result{}, fmt.Errorf("failed to link identities: %w", err)
	}

	// Backfill pass: dual-id rows created before the link get the missing
	// platform id filled in, so queries by either platform see them.
	if err := r.repo.BackfillEventPlatformIDs(ctx, linked); err != nil {
		return Result{}, fmt.Errorf("failed to backfill platform ids: %w", err)
	}

	return Result{OK: true, Message: "Accounts linked."}, nil
}

// mergeRows folds the secondary row (matched by Max id) into the primary
// (matched by Telegram id). The secondary's unique identity columns are
// nulled first so attaching them to the primary cannot trip the unique
// constraints mid-transaction.
func mergeRows(ctx context.Context, repo Repo, primary, secondary User) (User, error) {
	if err := repo.ClearPlatformIDs(ctx, secondary.ID); err != nil {
		return User{}, err
	}

	merged := mergeProfile(primary, secondary)
	merged.ID = primary.ID
	merged.TelegramID = primary.TelegramID
	merged.MaxID = secondary.MaxID
	merged.IsActive = primary.IsActive || secondary.IsActive
	if err := repo.UpdateUser(ctx, primary.ID, merged); err != nil {
		return User{}, err
	}

	if err := repo.RepointRelations(ctx, secondary.ID, primary.ID); err != nil {
		return User{}, err
	}
	if err := repo.RepointOwnership(ctx, secondary.ID, primary.ID); err != nil {
		return User{}, err
	}
	if err := repo.DeleteUser(ctx, secondary.ID); err != nil {
		return User{}, err
	}
	return merged, nil
}

// isConflict reports residual unique-constraint violations so the caller can
// turn them into a rejection instead of an internal error.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
