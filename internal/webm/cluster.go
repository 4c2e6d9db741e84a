package webm

import (
	"fmt"

	"github.com/shi-gg/opusfeed/internal/ebml"
)

// block is one SimpleBlock payload split into its track number, relative
// timecode (added to the cluster timecode) and the raw Opus packet.
type block struct {
	trackNumber   uint64
	timecodeDelta int16
	payload       []byte
}

// parseBlockPayload decodes the SimpleBlock/Block binary layout: a VLQ
// track number, a 2-byte signed big-endian timecode delta, a 1-byte flags
// field (lacing not supported, matching the encoder side which never
// produces laced blocks) and the remaining bytes as the codec payload.
func parseBlockPayload(data []byte) (block, error) {
	trackNumber, width, err := ebml.DecodeTrackNumber(data)
	if err != nil {
		return block{}, fmt.Errorf("webm: decoding block track number: %w", err)
	}
	if len(data) < width+3 {
		return block{}, fmt.Errorf("webm: block payload too short")
	}
	delta := int16(uint16(data[width])<<8 | uint16(data[width+1]))
	flags := data[width+2]
	if flags&0x06 != 0 {
		return block{}, fmt.Errorf("webm: laced blocks are not supported")
	}
	return block{
		trackNumber:   trackNumber,
		timecodeDelta: delta,
		payload:       data[width+3:],
	}, nil
}

// clusterBlocks walks a Cluster's children, yielding every block belonging
// to trackNumber in document order along with the cluster's own timecode.
func clusterBlocks(src ebml.Source, cluster ebml.Element, trackNumber uint64) (uint64, []block, error) {
	var clusterTimecode uint64
	var out []block

	it := ebml.NewElementRange(src, cluster.From, cluster.To)
	for {
		el, ok, err := it.Next()
		if err != nil {
			return 0, nil, fmt.Errorf("webm: reading cluster children: %w", err)
		}
		if !ok {
			break
		}
		switch el.ID {
		case ebml.IDTimecode:
			clusterTimecode = el.UInt
		case ebml.IDSimpleBlock:
			b, err := parseBlockPayload(el.Binary)
			if err != nil {
				return 0, nil, err
			}
			if b.trackNumber == trackNumber {
				out = append(out, b)
			}
		case ebml.IDBlockGroup:
			// No behavior for BlockGroup.
		}
	}
	return clusterTimecode, out, nil
}

// readClusterAt reads the Cluster element header at position and returns
// it alongside the position immediately after it, so scanning callers can
// advance without re-deriving the next offset.
func readClusterAt(src ebml.Source, position int64) (ebml.Element, int64, error) {
	pos := position
	el, err := ebml.ReadElement(src, &pos)
	if err != nil {
		return ebml.Element{}, 0, err
	}
	return el, pos, nil
}

// readClusterBlocksAt reads the Cluster element at position and returns the
// blocks belonging to trackNumber, in document order. Used by the prefetch
// worker to materialize a cue-indexed cluster (random access via the Cues
// index, as opposed to readClusterAt's sequential scan).
func readClusterBlocksAt(src ebml.Source, position int64, trackNumber uint64) ([]block, error) {
	el, _, err := readClusterAt(src, position)
	if err != nil {
		return nil, fmt.Errorf("webm: reading cluster at %d: %w", position, err)
	}
	if el.ID != ebml.IDCluster {
		return nil, fmt.Errorf("webm: expected Cluster at %d, got %s", position, el.Name)
	}
	_, blocks, err := clusterBlocks(src, el, trackNumber)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
