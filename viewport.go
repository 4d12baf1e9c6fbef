// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glyphatlas

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Viewport owns the uniform buffer holding the screen resolution used
// to project screen-space glyph positions into clip space. Update is
// cheap when the resolution has not changed, so it can run every
// frame.
type Viewport struct {
	device hal.Device
	queue  hal.Queue

	buffer     hal.Buffer
	resolution Resolution
}

// NewViewport creates the params buffer at zero resolution.
func NewViewport(device hal.Device, queue hal.Queue) (*Viewport, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "glyphatlas_params",
		Size:  paramsUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create params buffer: %w", err)
	}
	return &Viewport{device: device, queue: queue, buffer: buf}, nil
}

// Update writes the resolution to the uniform buffer if it changed.
func (v *Viewport) Update(res Resolution) {
	if res == v.resolution {
		return
	}
	v.resolution = res

	var data [paramsUniformSize]byte
	binary.LittleEndian.PutUint32(data[0:], res.Width)
	binary.LittleEndian.PutUint32(data[4:], res.Height)
	v.queue.WriteBuffer(v.buffer, 0, data[:])
	Logger().Debug("viewport updated", "width", res.Width, "height", res.Height)
}

// Resolution returns the last resolution written.
func (v *Viewport) Resolution() Resolution { return v.resolution }

// Buffer returns the params uniform buffer for bind group creation.
func (v *Viewport) Buffer() hal.Buffer { return v.buffer }

// Destroy releases the params buffer.
func (v *Viewport) Destroy() {
	if v.buffer != nil {
		v.device.DestroyBuffer(v.buffer)
		v.buffer = nil
	}
}
