// Package gpu uploads a published hierarchy into WebGPU storage buffers for the
// shading passes.
package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Device is a headless WebGPU device. No surface is created.
type Device struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
}

func NewHeadlessDevice() (*Device, error) {
	d := &Device{Instance: wgpu.CreateInstance(nil)}

	adapter, err := d.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	d.Adapter = adapter

	d.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	d.Queue = d.Device.GetQueue()
	return d, nil
}

func (d *Device) Release() {
	if d.Device != nil {
		d.Device.Release()
		d.Device = nil
	}
	if d.Adapter != nil {
		d.Adapter.Release()
		d.Adapter = nil
	}
	if d.Instance != nil {
		d.Instance.Release()
		d.Instance = nil
	}
}
