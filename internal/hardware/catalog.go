package hardware

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/capture-core/internal/infrastructure/config"
	"github.com/nerrad567/capture-core/internal/media"
)

// Catalog is a configured device list. It implements capture.Enumerator
// and capture.ScreenEnumerator, and can be changed at runtime to simulate
// plugging and unplugging devices.
type Catalog struct {
	mu      sync.RWMutex
	devices []media.DeviceInfo
	screens []media.SurfaceID
}

// NewCatalog builds a catalog from configuration.
func NewCatalog(cfg config.HardwareConfig) (*Catalog, error) {
	c := &Catalog{}
	for i, d := range cfg.Devices {
		info, err := deviceFromConfig(d)
		if err != nil {
			return nil, fmt.Errorf("hardware.devices[%d]: %w", i, err)
		}
		c.devices = append(c.devices, info)
	}
	for _, s := range cfg.Screens {
		c.screens = append(c.screens, media.SurfaceID{Kind: media.SurfaceScreen, ID: s.ID, WindowID: s.WindowID})
	}
	return c, nil
}

func deviceFromConfig(d config.CatalogDevice) (media.DeviceInfo, error) {
	kind := media.DeviceKind(d.Kind)
	switch kind {
	case media.KindAudioInput, media.KindVideoInput, media.KindAudioOutput:
	default:
		return media.DeviceInfo{}, fmt.Errorf("%w: kind %q", ErrInvalidDevice, d.Kind)
	}
	if d.ID == "" {
		return media.DeviceInfo{}, fmt.Errorf("%w: empty id", ErrInvalidDevice)
	}
	effects, unknown := media.ParseAudioEffects(d.Effects)
	if len(unknown) > 0 {
		return media.DeviceInfo{}, fmt.Errorf("%w: unknown effects %v", ErrInvalidDevice, unknown)
	}

	info := media.DeviceInfo{
		DeviceID: d.ID,
		GroupID:  d.GroupID,
		Label:    d.Label,
		Kind:     kind,
	}
	if kind == media.KindAudioInput {
		info.Input = media.AudioParameters{
			SampleRate:      d.SampleRate,
			Channels:        d.Channels,
			FramesPerBuffer: d.SampleRate / 100, //nolint:mnd // 10ms buffers
			Effects:         effects,
		}
		if !info.Input.Valid() {
			info.Input.SampleRate = media.DefaultSampleRate
			info.Input.Channels = 1
			info.Input.FramesPerBuffer = media.DefaultSampleRate / 100 //nolint:mnd // 10ms buffers
		}
	}
	return info, nil
}

// EnumerateDevices implements capture.Enumerator.
func (c *Catalog) EnumerateDevices(_ context.Context, kinds []media.DeviceKind) (media.Enumeration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(media.Enumeration, len(kinds))
	for _, kind := range kinds {
		list := []media.DeviceInfo{}
		for _, d := range c.devices {
			if d.Kind == kind {
				list = append(list, d)
			}
		}
		out[kind] = list
	}
	return out, nil
}

// EnumerateScreens implements capture.ScreenEnumerator.
func (c *Catalog) EnumerateScreens(context.Context) ([]media.SurfaceID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.screens), nil
}

// Lookup returns the catalog entry with the raw id.
func (c *Catalog) Lookup(rawID string) (media.DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.devices {
		if d.DeviceID == rawID {
			return d, true
		}
	}
	return media.DeviceInfo{}, false
}

// Add plugs a device in. An existing entry with the same id is replaced.
func (c *Catalog) Add(d config.CatalogDevice) error {
	info, err := deviceFromConfig(d)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = slices.DeleteFunc(c.devices, func(x media.DeviceInfo) bool { return x.DeviceID == info.DeviceID })
	c.devices = append(c.devices, info)
	return nil
}

// Remove unplugs a device and returns what was removed.
func (c *Catalog) Remove(rawID string) (media.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.devices, func(x media.DeviceInfo) bool { return x.DeviceID == rawID })
	if i < 0 {
		return media.DeviceInfo{}, fmt.Errorf("%w: %q", ErrUnknownDevice, rawID)
	}
	removed := c.devices[i]
	c.devices = slices.Delete(c.devices, i, i+1)
	return removed, nil
}
