package api

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/settings"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SettingsService reads and changes the user's settings. Pushes happen in the
// background; SyncSettings forces one batch now.
type SettingsService struct {
	svc    *settings.Service
	userID string
}

// NewSettingsService creates a new settings service for the daemon's user.
func NewSettingsService(svc *settings.Service, userID string) *SettingsService {
	return &SettingsService{svc: svc, userID: userID}
}

func (s *SettingsService) GetSettings(ctx context.Context, req *GetSettingsRequest) (*GetSettingsResponse, error) {
	return s.get(ctx, s.user(req.UserID))
}

func (s *SettingsService) ChangeLanguage(ctx context.Context, req *ChangeLanguageRequest) (*GetSettingsResponse, error) {
	lang, ok := settings.ParseUILanguage(req.Language)
	if !ok {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unsupported language %q", req.Language)
	}
	userID := s.user(req.UserID)
	if err := s.svc.ChangeUILanguage(ctx, userID, lang); err != nil {
		return nil, toStatus(err)
	}
	return s.get(ctx, userID)
}

func (s *SettingsService) SyncSettings(ctx context.Context, req *SyncSettingsRequest) (*SyncSettingsResponse, error) {
	outcome := s.svc.SyncAllPending(ctx, s.user(req.UserID))
	return &SyncSettingsResponse{Outcome: outcome.String()}, nil
}

func (s *SettingsService) get(ctx context.Context, userID string) (*GetSettingsResponse, error) {
	if userID == "" {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "no user configured")
	}
	got, err := s.svc.Get(ctx, userID)
	reset := errors.Is(err, settings.ErrSettingsResetToDefaults)
	if err != nil && !reset {
		return nil, toStatus(err)
	}
	lang := got.UILanguage
	return &GetSettingsResponse{
		Settings: []Setting{{
			Key:           string(settings.KeyUILanguage),
			Value:         string(lang.Value),
			LocalVersion:  lang.LocalVersion,
			SyncedVersion: lang.SyncedVersion,
			ServerVersion: lang.ServerVersion,
			SyncStatus:    string(lang.SyncStatus),
			ModifiedAt:    lang.ModifiedAt,
		}},
		ResetToDefaults: reset,
	}, nil
}

func (s *SettingsService) user(override string) string {
	if override != "" {
		return override
	}
	return s.userID
}
