package record

import (
	"bytes"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

var startCode3 = []byte{0, 0, 1}

// IsRandomAccess reports whether an Annex-B access unit contains a NAL unit
// a decoder can start from (IDR or CRA). The recorder gates its output on
// this so every file begins on a decodable sample.
func IsRandomAccess(accessUnit []byte) bool {
	for _, nalu := range splitAnnexB(accessUnit) {
		if len(nalu) == 0 {
			continue
		}
		typ := h265.NALUType((nalu[0] >> 1) & 0b111111)
		switch typ {
		case h265.NALUType_IDR_W_RADL, h265.NALUType_IDR_N_LP, h265.NALUType_CRA_NUT:
			return true
		}
	}
	return false
}

// splitAnnexB splits an Annex-B byte stream at its start codes. Both the
// three- and four-byte forms are accepted.
func splitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := -1

	for i := 0; i+2 < len(data); {
		if bytes.Equal(data[i:i+3], startCode3) {
			end := i
			if end > 0 && data[end-1] == 0 {
				end-- // four-byte start code
			}
			if start >= 0 {
				nalus = append(nalus, data[start:end])
			}
			start = i + 3
			i += 3
			continue
		}
		i++
	}
	if start >= 0 && start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}
