package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanmxa/genmotion/internal/canvas"
	"github.com/yanmxa/genmotion/internal/config"
	"github.com/yanmxa/genmotion/internal/log"
	"github.com/yanmxa/genmotion/internal/media"
	"github.com/yanmxa/genmotion/internal/plan"
	"github.com/yanmxa/genmotion/internal/sandbox"
	"github.com/yanmxa/genmotion/internal/session"
	"github.com/yanmxa/genmotion/internal/transport"
)

// animationNodeType is the canvas node type sessions attach to.
const animationNodeType = "animation"

// app holds everything one session needs, opened from the settings.
type app struct {
	*stores
	engine  *session.Engine
	sandbox *sandbox.Manager
	canvas  *canvas.MemoryStore
}

// stores are the persistent pieces shared by every command.
type stores struct {
	settings *config.Settings
	sessions *session.Store
	plans    *plan.Store
	cache    *media.Cache
	blobs    *media.BlobStore
	backend  *media.SQLiteBackend
}

// openStores loads settings and opens the persistent stores, without
// starting a session.
func openStores(ctx context.Context) (*stores, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	settings.ApplyEnv()

	backend, err := media.OpenSQLite(ctx, settings.MediaCachePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open media cache: %w", err)
	}
	cache := media.NewCache(backend)
	if err := cache.Hydrate(ctx); err != nil {
		log.LogError("media cache hydrate", err)
	}
	blobs := media.NewBlobStore()

	sessions, err := session.NewStore(settings.SessionPath(), cache, blobs)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	plans, err := plan.NewStore(settings.PlanPath())
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open plan store: %w", err)
	}
	return &stores{
		settings: settings,
		sessions: sessions,
		plans:    plans,
		cache:    cache,
		blobs:    blobs,
		backend:  backend,
	}, nil
}

func (s *stores) Close() {
	if err := s.backend.Close(); err != nil {
		log.LogError("close media cache", err)
	}
}

// openApp starts the session for nodeID. An empty nodeID resumes the most
// recently updated session, or starts a new one.
func openApp(ctx context.Context, nodeID string) (*app, error) {
	st, err := openStores(ctx)
	if err != nil {
		return nil, err
	}
	settings := st.settings

	if nodeID == "" {
		if latest, err := st.sessions.GetLatest(); err == nil && latest != nil {
			nodeID = latest.Metadata.NodeID
		} else {
			nodeID = newNodeID()
		}
	}

	client := transport.NewClient(settings.StreamURL())
	client.Headers = settings.Headers
	mgr := sandbox.NewManager(
		sandbox.NewClient(settings.SandboxURL(), settings.PersistURL(), settings.Timeout()),
		settings.Timeout(),
	)

	cv := canvas.NewMemoryStore()
	cv.AddNode(canvas.Node{ID: nodeID, Type: animationNodeType})

	engine := session.NewEngine(session.Config{
		NodeID:  nodeID,
		Stream:  transport.NewStream(client),
		Sandbox: mgr,
		Canvas:  cv,
		Store:   st.sessions,
		Plans:   st.plans,
		Cache:   st.cache,
		Blobs:   st.blobs,
		Engine:  settings.EngineOrDefault(),
		Style:   settings.Style,
	})

	log.Logger().Info("session opened",
		zap.String("node", nodeID),
		zap.String("stream", settings.StreamURL()),
		zap.String("sessions", filepath.Clean(settings.SessionPath())))

	return &app{
		stores:  st,
		engine:  engine,
		sandbox: mgr,
		canvas:  cv,
	}, nil
}

// Close stops the session, waits for background sandbox work and closes
// the media cache.
func (a *app) Close() {
	if err := a.engine.Close(); err != nil {
		log.LogError("close session", err)
	}
	a.sandbox.Wait()
	a.stores.Close()
}

func newNodeID() string {
	return "node-" + uuid.NewString()[:8]
}
