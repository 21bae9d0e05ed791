package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVP9Descriptor_RequiredByteOnly(t *testing.T) {
	var desc VP9Descriptor
	n, err := desc.Unmarshal([]byte{0x08, 0xAA})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, desc.BeginsFrame)
	assert.False(t, desc.EndsFrame)
	assert.False(t, desc.PictureIDPresent)
	assert.False(t, desc.LayerIndicesPresent)
	assert.False(t, desc.ScalabilityStructurePresent)
}

func TestVP9Descriptor_AllFlags(t *testing.T) {
	// I|P|L|F|B|E|V|Z all set, with the optional sections that combo
	// implies: 2-byte picture ID, layer byte (flexible mode, so no
	// TL0PICIDX), one P_DIFF, single-layer SS.
	payload := []byte{
		0xFF,
		0x80 | 0x12, 0x34, // extended picture ID 0x1234
		0xE3,       // TID=7, U=0, SID=1, D=1
		0x02,       // P_DIFF=1, N=0
		0x00,       // SS: N_S=0, Y=0, G=0
		0xDE, 0xAD, // codec payload
	}
	var desc VP9Descriptor
	n, err := desc.Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.True(t, desc.PictureIDPresent)
	assert.True(t, desc.ExtendedPictureID)
	assert.Equal(t, uint16(0x1234), desc.PictureID)
	assert.Equal(t, uint8(7), desc.TemporalID)
	assert.Equal(t, uint8(1), desc.SpatialID)
	assert.True(t, desc.InterLayerDependency)
	assert.Equal(t, []uint8{1}, desc.PDiffs)
	require.NotNil(t, desc.SS)
	assert.Equal(t, uint8(1), desc.SS.SpatialLayers)
	assert.True(t, desc.NotReference)
}

func TestVP9Descriptor_ShortPictureID(t *testing.T) {
	var desc VP9Descriptor
	n, err := desc.Unmarshal([]byte{0x80, 0x55, 0xAA})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, desc.ExtendedPictureID)
	assert.Equal(t, uint16(0x55), desc.PictureID)
}

func TestVP9Descriptor_NonFlexibleLayerIndices(t *testing.T) {
	// L set without F: layer byte is followed by TL0PICIDX.
	payload := []byte{0x20, 0x55, 0x42, 0xAA}
	var desc VP9Descriptor
	n, err := desc.Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint8(2), desc.TemporalID)
	assert.True(t, desc.SwitchingUpPoint)
	assert.Equal(t, uint8(2), desc.SpatialID)
	assert.True(t, desc.InterLayerDependency)
	assert.Equal(t, uint8(0x42), desc.TL0PicIdx)
}

func TestVP9Descriptor_FlexibleLayerIndices(t *testing.T) {
	// L and F set, not inter-predicted: layer byte only, no TL0PICIDX
	// and no P_DIFF records.
	payload := []byte{0x30, 0x40, 0xAA}
	var desc VP9Descriptor
	n, err := desc.Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint8(2), desc.TemporalID)
	assert.Empty(t, desc.PDiffs)
}

func TestVP9Descriptor_RefDiffs(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected []uint8
		size     int
	}{
		{
			name:     "single diff",
			payload:  []byte{0x50, 0x06, 0xAA},
			expected: []uint8{3},
			size:     2,
		},
		{
			name:     "chain stops at clear continuation bit",
			payload:  []byte{0x50, 0x03, 0x04, 0xAA},
			expected: []uint8{1, 2},
			size:     3,
		},
		{
			name:     "three diffs is the ceiling",
			payload:  []byte{0x50, 0x03, 0x05, 0x07, 0xAA},
			expected: []uint8{1, 2, 3},
			size:     4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var desc VP9Descriptor
			n, err := desc.Unmarshal(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.size, n)
			assert.Equal(t, tt.expected, desc.PDiffs)
		})
	}
}

func TestVP9Descriptor_ZeroRefDiffRejected(t *testing.T) {
	// P and F set, P_DIFF value 0 with continuation clear.
	var desc VP9Descriptor
	_, err := desc.Unmarshal([]byte{0x50, 0x00, 0xAA})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestVP9Descriptor_ScalabilityStructure(t *testing.T) {
	// Single spatial layer with resolution and a two-picture group.
	payload := []byte{
		0x02,
		0x18,       // N_S=0, Y=1, G=1
		0x07, 0x80, // width 1920
		0x04, 0x38, // height 1080
		0x02,             // N_G=2
		0x04, 0x01,       // TID=0, U=0, R=1, P_DIFF=1
		0x28, 0x01, 0x02, // TID=1, U=0, R=2, diffs 1,2
		0xAA,
	}
	var desc VP9Descriptor
	n, err := desc.Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload)-1, n)

	require.NotNil(t, desc.SS)
	require.Len(t, desc.SS.Resolutions, 1)
	assert.Equal(t, uint16(1920), desc.SS.Resolutions[0].Width)
	assert.Equal(t, uint16(1080), desc.SS.Resolutions[0].Height)
	require.Len(t, desc.SS.PictureGroups, 2)
	assert.Equal(t, []uint8{1}, desc.SS.PictureGroups[0].PDiffs)
	assert.Equal(t, uint8(1), desc.SS.PictureGroups[1].TemporalID)
	assert.Equal(t, []uint8{1, 2}, desc.SS.PictureGroups[1].PDiffs)
}

func TestVP9Descriptor_MultipleSpatialLayersUnsupported(t *testing.T) {
	// N_S=1 encodes two spatial layers; we stop rather than guess at
	// the payload offset.
	var desc VP9Descriptor
	_, err := desc.Unmarshal([]byte{0x02, 0x20, 0xAA})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedLayout)
	assert.NotErrorIs(t, err, ErrMalformedPacket)
}

func TestVP9Descriptor_Truncation(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"missing picture ID", []byte{0x80}},
		{"missing extended picture ID byte", []byte{0x80, 0x80}},
		{"missing layer byte", []byte{0x20}},
		{"missing TL0PICIDX", []byte{0x20, 0x55}},
		{"missing ref diff", []byte{0x50}},
		{"ref diff chain cut short", []byte{0x50, 0x03}},
		{"missing SS byte", []byte{0x02}},
		{"SS resolution cut short", []byte{0x02, 0x10, 0x07, 0x80, 0x04}},
		{"SS group count missing", []byte{0x02, 0x08}},
		{"SS group diffs missing", []byte{0x02, 0x08, 0x01, 0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var desc VP9Descriptor
			_, err := desc.Unmarshal(tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedPacket)
		})
	}
}

func TestVP9Descriptor_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		desc VP9Descriptor
	}{
		{
			name: "frame boundaries only",
			desc: VP9Descriptor{BeginsFrame: true, EndsFrame: true},
		},
		{
			name: "short picture ID",
			desc: VP9Descriptor{PictureIDPresent: true, PictureID: 0x7F, BeginsFrame: true},
		},
		{
			name: "extended picture ID",
			desc: VP9Descriptor{PictureIDPresent: true, ExtendedPictureID: true, PictureID: 0x7FFF},
		},
		{
			name: "non-flexible layer indices",
			desc: VP9Descriptor{
				LayerIndicesPresent:  true,
				TemporalID:           5,
				SwitchingUpPoint:     true,
				SpatialID:            3,
				InterLayerDependency: true,
				TL0PicIdx:            0x99,
			},
		},
		{
			name: "flexible inter-predicted with diffs",
			desc: VP9Descriptor{
				InterPicturePredicted: true,
				FlexibleMode:          true,
				PDiffs:                []uint8{1, 2, 127},
				NotReference:          true,
			},
		},
		{
			name: "scalability structure",
			desc: VP9Descriptor{
				BeginsFrame:                 true,
				EndsFrame:                   true,
				ScalabilityStructurePresent: true,
				SS: &VP9ScalabilityStructure{
					SpatialLayers: 1,
					Resolutions:   []VP9Resolution{{Width: 1280, Height: 720}},
					PictureGroups: []VP9PictureGroup{
						{TemporalID: 0, PDiffs: []uint8{4}},
						{TemporalID: 2, SwitchingUp: true, PDiffs: []uint8{1, 2}},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.desc.Marshal()
			require.NoError(t, err)

			var decoded VP9Descriptor
			n, err := decoded.Unmarshal(encoded)
			require.NoError(t, err)
			assert.Equal(t, len(encoded), n)
			assert.Equal(t, tt.desc, decoded)
		})
	}
}

func TestVP9Descriptor_MarshalRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		desc VP9Descriptor
	}{
		{
			name: "picture ID too wide for short form",
			desc: VP9Descriptor{PictureIDPresent: true, PictureID: 0x80},
		},
		{
			name: "zero P_DIFF",
			desc: VP9Descriptor{InterPicturePredicted: true, FlexibleMode: true, PDiffs: []uint8{0}},
		},
		{
			name: "too many P_DIFFs",
			desc: VP9Descriptor{InterPicturePredicted: true, FlexibleMode: true, PDiffs: []uint8{1, 2, 3, 4}},
		},
		{
			name: "multi-layer scalability structure",
			desc: VP9Descriptor{
				ScalabilityStructurePresent: true,
				SS:                          &VP9ScalabilityStructure{SpatialLayers: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.desc.Marshal()
			assert.Error(t, err)
		})
	}
}
