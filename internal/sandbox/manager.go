package sandbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanmxa/genmotion/internal/log"
)

const defaultTimeout = 2 * time.Minute

// Manager runs sandbox work in the background. Nothing it does blocks the
// caller, and failures end in the log, never in a panic.
type Manager struct {
	client  *Client
	timeout time.Duration

	handoffs singleflight.Group
	wg       sync.WaitGroup
}

// NewManager creates a manager. A zero timeout uses the default.
func NewManager(client *Client, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{client: client, timeout: timeout}
}

// Go runs fn on its own goroutine, recovering and logging a panic.
func (m *Manager) Go(name string, fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Logger().Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))
			}
		}()
		fn()
	}()
}

// Wait blocks until all background work has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Release issues an advisory cleanup of the sandbox. It returns at once;
// failures are logged and otherwise ignored.
func (m *Manager) Release(nodeID, sandboxID string) {
	if sandboxID == "" {
		return
	}
	m.Go("cleanup", func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		_, err := m.client.Action(ctx, ActionRequest{
			NodeID:    nodeID,
			Action:    ActionCleanup,
			SandboxID: sandboxID,
		})
		if err != nil {
			log.Logger().Warn("sandbox cleanup failed",
				zap.String("node", nodeID),
				zap.String("sandbox", sandboxID),
				zap.Error(err))
			return
		}
		log.Logger().Debug("sandbox released", zap.String("node", nodeID), zap.String("sandbox", sandboxID))
	})
}

// Finalize asks the sandbox to produce the final artifact and returns its
// url. Callers run it off the session goroutine and fall back to the last
// preview url on error.
func (m *Manager) Finalize(ctx context.Context, nodeID, sandboxID, filePath string) (string, error) {
	if sandboxID == "" {
		return "", fmt.Errorf("finalize: no sandbox")
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	resp, err := m.client.Action(ctx, ActionRequest{
		NodeID:    nodeID,
		Action:    ActionFinalize,
		SandboxID: sandboxID,
		FilePath:  filePath,
	})
	if err != nil {
		return "", err
	}
	return resp.VideoURL, nil
}

// Handoff copies a rendered file to durable storage in the background and
// reports the outcome to done. Concurrent hand-offs for the same version
// share one request. done runs on a background goroutine and must look the
// version up by id rather than hold a reference to it.
func (m *Manager) Handoff(req PersistRequest, done func(PersistResult, error)) {
	m.Go("persist", func() {
		v, err, shared := m.handoffs.Do(req.VersionID, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()
			return m.client.Persist(ctx, req)
		})
		res, _ := v.(PersistResult)
		if err != nil {
			log.Logger().Warn("durable storage hand-off failed",
				zap.String("node", req.NodeID),
				zap.String("version", req.VersionID),
				zap.Error(err))
		} else {
			log.Logger().Debug("version persisted",
				zap.String("version", req.VersionID),
				zap.String("url", res.VideoURL),
				zap.Bool("shared", shared))
		}
		if done != nil {
			done(res, err)
		}
	})
}
