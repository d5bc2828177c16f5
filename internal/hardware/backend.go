package hardware

import (
	"fmt"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/infrastructure/config"
)

// Backend bundles the managers and enumerators of one configured backend.
type Backend struct {
	Audio      *Manager
	Video      *Manager
	Enumerator capture.Enumerator
	Screens    capture.ScreenEnumerator

	// Catalog is set for the catalog backend and nil for pion.
	Catalog *Catalog
}

// New builds the backend named in cfg. Screens always come from the
// configured catalog list.
func New(cfg config.HardwareConfig) (*Backend, error) {
	catalog, err := NewCatalog(cfg)
	if err != nil {
		return nil, err
	}
	delay := time.Duration(cfg.OpenDelayMS) * time.Millisecond

	switch cfg.Backend {
	case config.HardwareBackendCatalog, "":
		return &Backend{
			Audio:      NewManager(ClassAudio, catalog, delay),
			Video:      NewManager(ClassVideo, catalog, delay),
			Enumerator: catalog,
			Screens:    catalog,
			Catalog:    catalog,
		}, nil
	case config.HardwareBackendPion:
		pion := NewPionEnumerator()
		return &Backend{
			Audio:      NewManager(ClassAudio, pion, delay),
			Video:      NewManager(ClassVideo, pion, delay),
			Enumerator: pion,
			Screens:    catalog,
		}, nil
	}
	return nil, fmt.Errorf("hardware: unknown backend %q", cfg.Backend)
}

// SetListener points both managers at l.
func (b *Backend) SetListener(l Listener) {
	b.Audio.SetListener(l)
	b.Video.SetListener(l)
}

// SetLogger sets the logger of both managers.
func (b *Backend) SetLogger(logger Logger) {
	b.Audio.SetLogger(logger)
	b.Video.SetLogger(logger)
}
