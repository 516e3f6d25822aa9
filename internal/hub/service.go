package hub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chartstudio/collab/internal/model"
	"github.com/chartstudio/collab/internal/repository"
)

// Service wires workspace hubs to the durable stores. A hub is created on
// first attach and rehydrated with the workspace's persisted comments and
// change history; it survives until the last client disconnects.
type Service struct {
	hubManager *HubManager
	comments   *repository.CommentRepository
	history    *repository.HistoryRepository
	log        *zap.Logger
	ringSize   int
	handler    *Handler
}

// Config holds configuration for the hub service.
type Config struct {
	// HistoryRingSize bounds the in-memory change history per hub.
	HistoryRingSize int

	// CheckOrigin restricts WebSocket upgrades; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

// NewService creates a hub service.
func NewService(comments *repository.CommentRepository, history *repository.HistoryRepository, log *zap.Logger, cfg Config) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HistoryRingSize == 0 {
		cfg.HistoryRingSize = 500
	}
	s := &Service{
		hubManager: NewHubManager(),
		comments:   comments,
		history:    history,
		log:        log,
		ringSize:   cfg.HistoryRingSize,
	}
	s.handler = NewHandler(s, log, cfg.CheckOrigin)
	return s
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// HubManager returns the hub manager.
func (s *Service) HubManager() *HubManager {
	return s.hubManager
}

// Comments returns the comment repository.
func (s *Service) Comments() *repository.CommentRepository {
	return s.comments
}

// History returns the change history repository.
func (s *Service) History() *repository.HistoryRepository {
	return s.history
}

// Workspace returns the hub for a workspace, creating and rehydrating it
// on first use.
func (s *Service) Workspace(ctx context.Context, workspaceID string) (*Hub, error) {
	if workspaceID == "" {
		return nil, model.ErrWorkspaceRequired
	}

	if hub := s.hubManager.Get(workspaceID); hub != nil {
		return hub, nil
	}

	// Rehydrate outside the manager lock; a concurrent first attach may
	// race here, in which case GetOrCreate keeps one hub and this
	// snapshot is discarded.
	sess, err := s.rehydrate(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	hub := s.hubManager.GetOrCreate(workspaceID, func() *Hub {
		h := NewHub(workspaceID, sess, s.ringSize)
		h.SetOnEmpty(func() {
			s.log.Info("all clients disconnected from workspace",
				zap.String("workspace", workspaceID))
		})
		return h
	})
	return hub, nil
}

// rehydrate loads the persisted workspace state into a fresh session.
func (s *Service) rehydrate(ctx context.Context, workspaceID string) (*model.CollaborationSession, error) {
	comments, err := s.comments.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments: %w", err)
	}
	entries, err := s.history.ListByWorkspace(ctx, workspaceID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load change history: %w", err)
	}

	now := time.Now()
	return &model.CollaborationSession{
		ID:            uuid.New().String(),
		WorkspaceID:   workspaceID,
		Comments:      comments,
		ChangeHistory: entries,
		CreatedAt:     now,
		LastActive:    now,
	}, nil
}

// Presence returns the currently connected users of a workspace.
func (s *Service) Presence(workspaceID string) []*model.CollaborationUser {
	hub := s.hubManager.Get(workspaceID)
	if hub == nil {
		return nil
	}
	sess := hub.State().Snapshot()
	if sess == nil {
		return nil
	}
	return sess.Users
}

// ClientCount returns the number of connected clients for a workspace.
func (s *Service) ClientCount(workspaceID string) int {
	hub := s.hubManager.Get(workspaceID)
	if hub == nil {
		return 0
	}
	return hub.ClientCount()
}

// Close closes all hubs.
func (s *Service) Close() {
	s.hubManager.Close()
}
