package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/refract/internal/ingestion/security"
)

// Required descriptor byte flags (RFC 9628 Section 4.2):
// I|P|L|F|B|E|V|Z, MSB first.
const (
	vp9FlagPictureID   = 0x80 // I: picture ID present
	vp9FlagInterPic    = 0x40 // P: inter-picture predicted frame
	vp9FlagLayerIdx    = 0x20 // L: layer indices present
	vp9FlagFlexible    = 0x10 // F: flexible mode
	vp9FlagBeginsFrame = 0x08 // B: start of frame
	vp9FlagEndsFrame   = 0x04 // E: end of frame
	vp9FlagScalability = 0x02 // V: scalability structure present
	vp9FlagNotRef      = 0x01 // Z: not a reference for upper spatial layers

	// vp9MaxRefDiffs is the maximum number of P_DIFF records in
	// flexible mode.
	vp9MaxRefDiffs = 3
)

// VP9Resolution is one spatial layer's resolution from the scalability
// structure.
type VP9Resolution struct {
	Width  uint16
	Height uint16
}

// VP9PictureGroup is one picture description from the scalability
// structure's picture group.
type VP9PictureGroup struct {
	TemporalID  uint8
	SwitchingUp bool
	PDiffs      []uint8
}

// VP9ScalabilityStructure is the decoded SS section. SpatialLayers is
// N_S+1; anything above 1 is rejected as unsupported before the rest of
// the section is parsed.
type VP9ScalabilityStructure struct {
	SpatialLayers uint8
	Resolutions   []VP9Resolution
	PictureGroups []VP9PictureGroup
}

// VP9Descriptor is the variable-length payload descriptor that prefixes
// every VP9 fragment (RFC 9628 Section 4.2). It is a packet-scoped
// decode of the leading payload bytes; nothing here is retained across
// packets.
type VP9Descriptor struct {
	PictureIDPresent            bool // I
	InterPicturePredicted       bool // P
	LayerIndicesPresent         bool // L
	FlexibleMode                bool // F
	BeginsFrame                 bool // B
	EndsFrame                   bool // E
	ScalabilityStructurePresent bool // V
	NotReference                bool // Z

	// Picture ID, 7 bits in one byte or 15 bits across two when
	// ExtendedPictureID is set.
	ExtendedPictureID bool
	PictureID         uint16

	// Layer indices: TID(3)|U(1)|SID(3)|D(1), plus TL0PICIDX in
	// non-flexible mode only.
	TemporalID           uint8
	SwitchingUpPoint     bool
	SpatialID            uint8
	InterLayerDependency bool
	TL0PicIdx            uint8

	// Reference picture ID diffs, flexible mode inter-predicted frames
	// only. 1..3 entries, each 1..127.
	PDiffs []uint8

	SS *VP9ScalabilityStructure
}

// Unmarshal decodes the descriptor from the start of payload and returns
// the number of bytes it occupied, i.e. the offset of the codec data.
// The parse is pure: payload is never mutated or retained.
func (d *VP9Descriptor) Unmarshal(payload []byte) (int, error) {
	c := &cursor{buf: payload}

	required, err := c.readByte()
	if err != nil {
		return 0, err
	}
	d.PictureIDPresent = required&vp9FlagPictureID != 0
	d.InterPicturePredicted = required&vp9FlagInterPic != 0
	d.LayerIndicesPresent = required&vp9FlagLayerIdx != 0
	d.FlexibleMode = required&vp9FlagFlexible != 0
	d.BeginsFrame = required&vp9FlagBeginsFrame != 0
	d.EndsFrame = required&vp9FlagEndsFrame != 0
	d.ScalabilityStructurePresent = required&vp9FlagScalability != 0
	d.NotReference = required&vp9FlagNotRef != 0

	if d.PictureIDPresent {
		if err := d.parsePictureID(c); err != nil {
			return 0, err
		}
	}
	if d.LayerIndicesPresent {
		if err := d.parseLayerIndices(c); err != nil {
			return 0, err
		}
	}
	// P_DIFF records exist only for inter-predicted frames in flexible
	// mode; in non-flexible mode references are inferred from TL0PICIDX.
	if d.FlexibleMode && d.InterPicturePredicted {
		if err := d.parseRefDiffs(c); err != nil {
			return 0, err
		}
	}
	if d.ScalabilityStructurePresent {
		if err := d.parseScalabilityStructure(c); err != nil {
			return 0, err
		}
	}

	return c.off, nil
}

// parsePictureID decodes the 1- or 2-byte picture ID. The high bit of
// the first byte selects the 15-bit form.
func (d *VP9Descriptor) parsePictureID(c *cursor) error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	if b&0x80 != 0 {
		ext, err := c.readByte()
		if err != nil {
			return err
		}
		d.ExtendedPictureID = true
		d.PictureID = uint16(b&0x7F)<<8 | uint16(ext)
	} else {
		d.ExtendedPictureID = false
		d.PictureID = uint16(b)
	}
	return nil
}

// parseLayerIndices decodes TID|U|SID|D and, in non-flexible mode, the
// TL0PICIDX byte that follows it.
func (d *VP9Descriptor) parseLayerIndices(c *cursor) error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	d.TemporalID = b >> 5
	d.SwitchingUpPoint = b&0x10 != 0
	d.SpatialID = (b >> 1) & 0x07
	d.InterLayerDependency = b&0x01 != 0

	if !d.FlexibleMode {
		idx, err := c.readByte()
		if err != nil {
			return err
		}
		d.TL0PicIdx = idx
	}
	return nil
}

// parseRefDiffs decodes up to three P_DIFF(7)|N(1) records, stopping at
// the first record with N clear. A zero diff is a format violation.
func (d *VP9Descriptor) parseRefDiffs(c *cursor) error {
	d.PDiffs = d.PDiffs[:0]
	for i := 0; i < vp9MaxRefDiffs; i++ {
		b, err := c.readByte()
		if err != nil {
			return err
		}
		diff := b >> 1
		if diff == 0 {
			return fmt.Errorf("%w: P_DIFF value 0", ErrMalformedPacket)
		}
		d.PDiffs = append(d.PDiffs, diff)
		if b&0x01 == 0 {
			return nil
		}
	}
	return nil
}

// parseScalabilityStructure decodes N_S|Y|G and the optional resolution
// and picture-group sections. More than one spatial layer is a
// recognized layout we do not implement: parsing stops there rather
// than continuing with a wrong payload offset.
func (d *VP9Descriptor) parseScalabilityStructure(c *cursor) error {
	b, err := c.readByte()
	if err != nil {
		return err
	}
	ss := &VP9ScalabilityStructure{SpatialLayers: (b >> 5) + 1}
	hasResolutions := b&0x10 != 0
	hasPictureGroup := b&0x08 != 0

	if ss.SpatialLayers > 1 {
		return fmt.Errorf("%w: scalability structure with %d spatial layers", ErrUnsupportedLayout, ss.SpatialLayers)
	}

	if hasResolutions {
		for i := uint8(0); i < ss.SpatialLayers; i++ {
			w, err := c.readUint16()
			if err != nil {
				return err
			}
			h, err := c.readUint16()
			if err != nil {
				return err
			}
			ss.Resolutions = append(ss.Resolutions, VP9Resolution{Width: w, Height: h})
		}
	}

	if hasPictureGroup {
		count, err := c.readByte()
		if err != nil {
			return err
		}
		for i := 0; i < int(count); i++ {
			b, err := c.readByte()
			if err != nil {
				return err
			}
			group := VP9PictureGroup{
				TemporalID:  b >> 5,
				SwitchingUp: b&0x10 != 0,
			}
			refs := int(b>>2) & 0x03
			for j := 0; j < refs; j++ {
				diff, err := c.readByte()
				if err != nil {
					return err
				}
				group.PDiffs = append(group.PDiffs, diff)
			}
			ss.PictureGroups = append(ss.PictureGroups, group)
		}
	}

	d.SS = ss
	return nil
}

// Marshal encodes the descriptor into its wire form. It is the inverse
// of Unmarshal for every supported field combination and is used by
// test senders.
func (d *VP9Descriptor) Marshal() ([]byte, error) {
	buf := make([]byte, 0, security.MaxVP9DescriptorSize)

	var required byte
	if d.PictureIDPresent {
		required |= vp9FlagPictureID
	}
	if d.InterPicturePredicted {
		required |= vp9FlagInterPic
	}
	if d.LayerIndicesPresent {
		required |= vp9FlagLayerIdx
	}
	if d.FlexibleMode {
		required |= vp9FlagFlexible
	}
	if d.BeginsFrame {
		required |= vp9FlagBeginsFrame
	}
	if d.EndsFrame {
		required |= vp9FlagEndsFrame
	}
	if d.ScalabilityStructurePresent {
		required |= vp9FlagScalability
	}
	if d.NotReference {
		required |= vp9FlagNotRef
	}
	buf = append(buf, required)

	if d.PictureIDPresent {
		if d.ExtendedPictureID {
			if d.PictureID > 0x7FFF {
				return nil, fmt.Errorf("picture ID %d exceeds 15 bits", d.PictureID)
			}
			buf = append(buf, byte(d.PictureID>>8)|0x80, byte(d.PictureID))
		} else {
			if d.PictureID > 0x7F {
				return nil, fmt.Errorf("picture ID %d exceeds 7 bits", d.PictureID)
			}
			buf = append(buf, byte(d.PictureID))
		}
	}

	if d.LayerIndicesPresent {
		if d.TemporalID > 7 || d.SpatialID > 7 {
			return nil, fmt.Errorf("layer indices out of range: TID=%d SID=%d", d.TemporalID, d.SpatialID)
		}
		b := d.TemporalID<<5 | d.SpatialID<<1
		if d.SwitchingUpPoint {
			b |= 0x10
		}
		if d.InterLayerDependency {
			b |= 0x01
		}
		buf = append(buf, b)
		if !d.FlexibleMode {
			buf = append(buf, d.TL0PicIdx)
		}
	}

	if d.FlexibleMode && d.InterPicturePredicted {
		if len(d.PDiffs) == 0 || len(d.PDiffs) > vp9MaxRefDiffs {
			return nil, fmt.Errorf("need 1..%d P_DIFF entries, have %d", vp9MaxRefDiffs, len(d.PDiffs))
		}
		for i, diff := range d.PDiffs {
			if diff == 0 || diff > 0x7F {
				return nil, fmt.Errorf("P_DIFF %d out of range", diff)
			}
			b := diff << 1
			if i < len(d.PDiffs)-1 {
				b |= 0x01
			}
			buf = append(buf, b)
		}
	}

	if d.ScalabilityStructurePresent {
		ssBytes, err := d.marshalScalabilityStructure()
		if err != nil {
			return nil, err
		}
		buf = append(buf, ssBytes...)
	}

	return buf, nil
}

func (d *VP9Descriptor) marshalScalabilityStructure() ([]byte, error) {
	ss := d.SS
	if ss == nil || ss.SpatialLayers != 1 {
		return nil, fmt.Errorf("scalability structure must describe exactly 1 spatial layer")
	}
	if len(ss.Resolutions) > int(ss.SpatialLayers) {
		return nil, fmt.Errorf("have %d resolutions for %d spatial layers", len(ss.Resolutions), ss.SpatialLayers)
	}
	if len(ss.PictureGroups) > 0xFF {
		return nil, fmt.Errorf("too many picture groups: %d", len(ss.PictureGroups))
	}

	b := (ss.SpatialLayers - 1) << 5
	if len(ss.Resolutions) > 0 {
		b |= 0x10
	}
	if len(ss.PictureGroups) > 0 {
		b |= 0x08
	}
	buf := []byte{b}

	for _, res := range ss.Resolutions {
		buf = binary.BigEndian.AppendUint16(buf, res.Width)
		buf = binary.BigEndian.AppendUint16(buf, res.Height)
	}

	if len(ss.PictureGroups) > 0 {
		buf = append(buf, byte(len(ss.PictureGroups)))
		for _, group := range ss.PictureGroups {
			if group.TemporalID > 7 || len(group.PDiffs) > 3 {
				return nil, fmt.Errorf("invalid picture group: TID=%d refs=%d", group.TemporalID, len(group.PDiffs))
			}
			b := group.TemporalID<<5 | byte(len(group.PDiffs))<<2
			if group.SwitchingUp {
				b |= 0x10
			}
			buf = append(buf, b)
			buf = append(buf, group.PDiffs...)
		}
	}

	return buf, nil
}
