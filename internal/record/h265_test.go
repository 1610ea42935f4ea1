package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// nalu builds an Annex-B NAL unit with a four-byte start code and the given
// H.265 NAL unit type.
func nalu(typ byte, payload ...byte) []byte {
	header := []byte{0, 0, 0, 1, typ << 1, 0x01}
	return append(header, payload...)
}

func TestIsRandomAccess(t *testing.T) {
	const (
		trailN  = 0  // TRAIL_N
		trailR  = 1  // TRAIL_R
		idrWRad = 19 // IDR_W_RADL
		idrNLP  = 20 // IDR_N_LP
		cra     = 21 // CRA_NUT
		vps     = 32 // VPS_NUT
		sps     = 33 // SPS_NUT
	)

	tests := []struct {
		name string
		au   []byte
		want bool
	}{
		{"IDR_W_RADL", nalu(idrWRad, 0xaa, 0xbb), true},
		{"IDR_N_LP", nalu(idrNLP, 0xaa), true},
		{"CRA", nalu(cra, 0xaa), true},
		{"trailing picture", nalu(trailR, 0xaa), false},
		{"non-reference trailing", nalu(trailN, 0xaa), false},
		{"parameter sets only", append(nalu(vps), nalu(sps)...), false},
		{"parameter sets then IDR", append(append(nalu(vps), nalu(sps)...), nalu(idrWRad, 0xaa)...), true},
		{"empty", nil, false},
		{"garbage", []byte{0xde, 0xad, 0xbe, 0xef}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsRandomAccess(tt.au))
		})
	}
}

func TestSplitAnnexB(t *testing.T) {
	// Mix of three- and four-byte start codes.
	au := []byte{
		0, 0, 1, 0x40, 0x01, 0xaa,
		0, 0, 0, 1, 0x42, 0x01, 0xbb, 0xcc,
		0, 0, 1, 0x26, 0x01,
	}

	nalus := splitAnnexB(au)
	require.Len(t, nalus, 3)
	require.Equal(t, []byte{0x40, 0x01, 0xaa}, nalus[0])
	require.Equal(t, []byte{0x42, 0x01, 0xbb, 0xcc}, nalus[1])
	require.Equal(t, []byte{0x26, 0x01}, nalus[2])
}

func TestSplitAnnexBNoStartCode(t *testing.T) {
	require.Empty(t, splitAnnexB([]byte{0x40, 0x01, 0xaa}))
	require.Empty(t, splitAnnexB(nil))
}
