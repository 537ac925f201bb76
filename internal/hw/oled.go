// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hw

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// OLED shows one centred line of text on a 128x64 SSD1306.
type OLED struct {
	dev   *ssd1306.Dev
	bus   i2c.BusCloser
	scale int
	last  string
}

// addrBus pins every transaction to one address so two panels can share a
// bus even though the driver always talks to the default address.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b addrBus) Tx(_ uint16, w, r []byte) error { return b.Bus.Tx(b.addr, w, r) }

// OpenOLED opens busName ("" for the first bus) and initialises the panel at
// addr. scale enlarges the 7x13 font by an integer factor.
func OpenOLED(busName string, addr uint16, scale int) (*OLED, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("hw: open I2C bus %q: %w", busName, err)
	}
	dev, err := ssd1306.NewI2C(addrBus{Bus: bus, addr: addr}, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("hw: ssd1306 at 0x%02X: %w", addr, err)
	}
	if scale < 1 {
		scale = 1
	}
	return &OLED{dev: dev, bus: bus, scale: scale}, nil
}

// DrawString clears the panel and draws s centred. Repeating the previous
// string is a no-op.
func (o *OLED) DrawString(s string) error {
	if s == o.last {
		return nil
	}
	b := o.dev.Bounds()
	img := RenderLine(s, b.Dx(), b.Dy(), o.scale)
	if err := o.dev.Draw(b, img, image.Point{}); err != nil {
		return fmt.Errorf("hw: draw %q: %w", s, err)
	}
	o.last = s
	return nil
}

// Close blanks the panel and releases the bus.
func (o *OLED) Close() error {
	if err := o.dev.Halt(); err != nil {
		o.bus.Close()
		return err
	}
	return o.bus.Close()
}

// RenderLine draws s in basicfont 7x13, enlarged by scale and centred in a
// w x h monochrome image. Text wider than the image is clipped.
func RenderLine(s string, w, h, scale int) *image1bit.VerticalLSB {
	face := basicfont.Face7x13
	tw := font.MeasureString(face, s).Ceil()
	th := face.Height

	small := image1bit.NewVerticalLSB(image.Rect(0, 0, max(tw, 1), th))
	d := &font.Drawer{
		Dst:  small,
		Src:  &image.Uniform{image1bit.On},
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	out := image1bit.NewVerticalLSB(image.Rect(0, 0, w, h))
	x0 := (w - tw*scale) / 2
	y0 := (h - th*scale) / 2
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			if small.BitAt(x, y) != image1bit.On {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					px, py := x0+x*scale+dx, y0+y*scale+dy
					if px >= 0 && px < w && py >= 0 && py < h {
						out.SetBit(px, py, image1bit.On)
					}
				}
			}
		}
	}
	return out
}
