package agent

import (
	"context"
	"sync"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
)

// Registrar guarantees the installation is registered with the server
// exactly once before any authenticated request goes out. Startup fans
// out several workers at once, so first use is serialized by a mutex to
// prevent double registration.
type Registrar struct {
	mu         sync.Mutex
	registered bool

	installation model.RegisterInstallationRequest
	register     func(ctx context.Context, req model.RegisterInstallationRequest) error
}

// NewRegistrar builds a registrar for the device identity. The id is
// generated by the device and kept stable across restarts by the caller.
func NewRegistrar(inst model.RegisterInstallationRequest, register func(ctx context.Context, req model.RegisterInstallationRequest) error) *Registrar {
	return &Registrar{installation: inst, register: register}
}

// InstallationID returns the device's stable id.
func (r *Registrar) InstallationID() uuid.UUID {
	return r.installation.ID
}

// Ensure registers the installation on first call and is a no-op after.
// Registration is idempotent server-side, so a failure here simply lets
// the next caller retry.
func (r *Registrar) Ensure(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		return nil
	}
	if err := r.register(ctx, r.installation); err != nil {
		return err
	}
	r.registered = true
	return nil
}
