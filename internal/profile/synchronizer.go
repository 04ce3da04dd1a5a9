// Package profile drives the Vision profile lifecycle of an account:
// no_profile -> profile_created -> synced -> no_profile.
//
// Each transition holds the account's advisory lock, re-reads the account,
// and persists through a compare-and-set on the profile identifier.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"account_sync/internal/apperr"
	"account_sync/internal/lock"
	"account_sync/internal/logbus"
	"account_sync/internal/model"
	"account_sync/internal/store/sqlite"
	"account_sync/internal/vision"
)

const (
	profileNamePrefix = "cms-created-"
	profileNotes      = "Created via API"
	platformWindows   = "Windows"
	browserChrome     = "Chrome"
)

type VisionAPI interface {
	CreateProfile(ctx context.Context, req vision.CreateProfileRequest) (vision.Profile, error)
	GetProfile(ctx context.Context, profileID string) (vision.Profile, error)
	DeleteProfile(ctx context.Context, profileID string) error
	ImportCookies(ctx context.Context, profileID string, cookies json.RawMessage) error
	GetCookies(ctx context.Context, profileID string) (json.RawMessage, error)
	ProxyID() string
}

type Store interface {
	GetAccount(ctx context.Context, id string) (model.Account, error)
	AttachVisionProfile(ctx context.Context, id, profileID string, fp model.Fingerprint) error
	ReplaceCookies(ctx context.Context, id, profileID string, cookie json.RawMessage, syncedAt time.Time) error
	DetachVisionProfile(ctx context.Context, id, profileID string) error
}

type Fingerprints interface {
	Ensure(ctx context.Context, acc model.Account) (model.Fingerprint, bool, error)
}

type Options struct {
	Store        Store
	Vision       VisionAPI
	Fingerprints Fingerprints
	Locker       lock.Locker
	Bus          *logbus.Bus
	// DeleteOnSyncFailure lets SyncAndDelete proceed to deletion when the
	// preceding sync failed.
	DeleteOnSyncFailure bool
	Now                 func() time.Time
}

type Synchronizer struct {
	store        Store
	vision       VisionAPI
	fingerprints Fingerprints
	locker       lock.Locker
	bus          *logbus.Bus
	now          func() time.Time

	deleteOnSyncFailure bool
}

func New(opts Options) *Synchronizer {
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Synchronizer{
		store:               opts.Store,
		vision:              opts.Vision,
		fingerprints:        opts.Fingerprints,
		locker:              locker,
		bus:                 opts.Bus,
		deleteOnSyncFailure: opts.DeleteOnSyncFailure,
		now:                 now,
	}
}

type CreateResult struct {
	VisionProfile vision.Profile `json:"visionProfile"`
	// Created is false when the account already had a profile.
	Created bool `json:"created"`
}

type SyncResult struct {
	// Synced is false when the account has no profile to sync.
	Synced      bool            `json:"synced"`
	Profile     *vision.Profile `json:"profile,omitempty"`
	CookieCount int             `json:"cookieCount"`
}

type DeleteResult struct {
	// Deleted is false when there was no profile to delete.
	Deleted   bool   `json:"deleted"`
	ProfileID string `json:"profileId,omitempty"`
	// SyncError is set when deletion went ahead despite a failed sync.
	SyncError string `json:"syncError,omitempty"`
}

// Create attaches a new Vision profile to the account. It is idempotent: an
// account that already has a profile is returned as is, without calling
// Vision.
func (s *Synchronizer) Create(ctx context.Context, accountID string) (CreateResult, error) {
	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return CreateResult{}, err
	}
	defer unlock()

	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return CreateResult{}, err
	}
	if acc.HasProfile() {
		return CreateResult{VisionProfile: vision.Profile{ID: acc.VisionProfileID}}, nil
	}

	fp, fresh, err := s.fingerprints.Ensure(ctx, acc)
	if err != nil {
		s.log("error", "fingerprint provisioning failed", acc, err)
		return CreateResult{}, err
	}

	prof, err := s.vision.CreateProfile(ctx, vision.CreateProfileRequest{
		ProfileName:  profileNamePrefix + acc.Login,
		ProfileNotes: profileNotes,
		ProxyID:      s.vision.ProxyID(),
		Platform:     platformWindows,
		Browser:      browserChrome,
		Fingerprint:  fp,
	})
	if err != nil {
		s.log("error", "vision profile creation failed", acc, err)
		return CreateResult{}, apperr.E(apperr.External, "create vision profile", err)
	}
	s.log("info", "vision profile created", acc, nil, "profileId", prof.ID)

	if err := s.vision.ImportCookies(ctx, prof.ID, acc.Cookie); err != nil {
		s.log("warn", "cookie import into vision profile failed", acc, err, "profileId", prof.ID)
	}

	var toStore model.Fingerprint
	if fresh {
		toStore = fp
	}
	if err := s.store.AttachVisionProfile(ctx, acc.ID, prof.ID, toStore); err != nil {
		if errors.Is(err, sqlite.ErrProfileConflict) {
			// Another writer attached a profile first; ours is surplus.
			if derr := s.vision.DeleteProfile(ctx, prof.ID); derr != nil {
				s.log("error", "surplus vision profile left behind", acc, derr, "profileId", prof.ID)
			}
			return CreateResult{}, err
		}
		s.log("error", "vision profile created but not recorded", acc, err, "profileId", prof.ID)
		return CreateResult{}, fmt.Errorf("record vision profile %s: %w", prof.ID, err)
	}

	s.publishState(acc.ID, model.ProfileStateCreated, prof.ID)
	return CreateResult{VisionProfile: prof, Created: true}, nil
}

// Sync replaces the account's cookies with the ones held by its Vision
// profile.
func (s *Synchronizer) Sync(ctx context.Context, accountID string) (SyncResult, error) {
	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return SyncResult{}, err
	}
	defer unlock()
	return s.syncLocked(ctx, accountID)
}

func (s *Synchronizer) syncLocked(ctx context.Context, accountID string) (SyncResult, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return SyncResult{}, err
	}
	if !acc.HasProfile() {
		return SyncResult{}, nil
	}

	prof, err := s.vision.GetProfile(ctx, acc.VisionProfileID)
	if err != nil {
		s.log("error", "vision profile fetch failed", acc, err)
		return SyncResult{}, apperr.E(apperr.External, "sync vision profile", err)
	}
	cookies, err := s.vision.GetCookies(ctx, prof.ID)
	if err != nil {
		s.log("error", "vision cookie fetch failed", acc, err)
		return SyncResult{}, apperr.E(apperr.External, "sync vision cookies", err)
	}

	if err := s.store.ReplaceCookies(ctx, acc.ID, acc.VisionProfileID, cookies, s.now()); err != nil {
		return SyncResult{}, err
	}
	count := model.CookieCount(cookies)
	s.log("info", "vision profile synced", acc, nil, "profileId", prof.ID, "cookies", count)
	s.publishState(acc.ID, model.ProfileStateSynced, prof.ID)
	return SyncResult{Synced: true, Profile: &prof, CookieCount: count}, nil
}

// SyncAndDelete pulls the profile's cookies and then removes the profile from
// Vision. Cookies and fingerprint stay on the account.
func (s *Synchronizer) SyncAndDelete(ctx context.Context, accountID string) (DeleteResult, error) {
	unlock, err := s.lock(ctx, accountID)
	if err != nil {
		return DeleteResult{}, err
	}
	defer unlock()

	var result DeleteResult
	if _, err := s.syncLocked(ctx, accountID); err != nil {
		if !s.deleteOnSyncFailure || apperr.KindOf(err) != apperr.External {
			return DeleteResult{}, err
		}
		result.SyncError = err.Error()
	}

	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return DeleteResult{}, err
	}
	if !acc.HasProfile() {
		return result, nil
	}

	profileID := acc.VisionProfileID
	if err := s.vision.DeleteProfile(ctx, profileID); err != nil {
		s.log("error", "vision profile deletion failed", acc, err)
		return DeleteResult{}, apperr.E(apperr.External, "delete vision profile", err)
	}
	if err := s.store.DetachVisionProfile(ctx, acc.ID, profileID); err != nil {
		s.log("error", "vision profile deleted but identifier kept", acc, err, "profileId", profileID)
		return DeleteResult{}, err
	}

	s.log("info", "vision profile deleted", acc, nil, "profileId", profileID)
	s.publishState(acc.ID, model.ProfileStateNone, "")
	result.Deleted = true
	result.ProfileID = profileID
	return result, nil
}

func (s *Synchronizer) lock(ctx context.Context, accountID string) (func(), error) {
	if accountID == "" {
		return nil, apperr.Errorf(apperr.Validation, "profile", "account id is required")
	}
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lock account %s: %w", accountID, err)
	}
	return unlock, nil
}

func (s *Synchronizer) log(level, msg string, acc model.Account, err error, kv ...any) {
	if s.bus == nil {
		return
	}
	fields := map[string]any{"accountId": acc.ID, "login": acc.Login}
	if acc.VisionProfileID != "" {
		fields["profileId"] = acc.VisionProfileID
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	s.bus.Log(level, msg, fields)
}

func (s *Synchronizer) publishState(accountID string, state model.ProfileState, profileID string) {
	s.bus.PublishProfileState(logbus.ProfileStateEvent{
		AccountID: accountID,
		State:     string(state),
		ProfileID: profileID,
	})
}
