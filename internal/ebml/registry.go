package ebml

// registryEntry is the static (name, type) pair an id maps to. Unknown ids
// resolve to unknownEntry.
type registryEntry struct {
	name string
	kind Kind
}

var unknownEntry = registryEntry{name: "Unknown", kind: KindUnknown}

// registry is the subset of the EBML/WebM/Matroska element table this
// decoder needs: enough of the header tree (EBML, Segment, SeekHead, Info,
// Tracks, Cues) and the media tree (Cluster, blocks) to drive §4.C of the
// spec. IDs are the full on-wire bit pattern, marker bit included.
var registry = map[ID]registryEntry{
	0x1A45DFA3: {"EBML", KindMaster},
	0x18538067: {"Segment", KindMaster},

	0x114D9B74: {"SeekHead", KindMaster},
	0x4DBB:     {"Seek", KindMaster},
	0x53AB:     {"SeekID", KindBinary},
	0x53AC:     {"SeekPosition", KindUInt},

	0x1549A966: {"Info", KindMaster},
	0x2AD7B1:   {"TimecodeScale", KindUInt},
	0x4489:     {"Duration", KindFloat},
	0x4461:     {"DateUTC", KindDate},

	0x1654AE6B: {"Tracks", KindMaster},
	0xAE:       {"TrackEntry", KindMaster},
	0xD7:       {"TrackNumber", KindUInt},
	0x83:       {"TrackType", KindUInt},
	0x86:       {"CodecID", KindString},
	0xE1:       {"Audio", KindMaster},
	0xB5:       {"SamplingFrequency", KindFloat},
	0x9F:       {"Channels", KindUInt},
	0x6264:     {"BitDepth", KindUInt},

	0x1C53BB6B: {"Cues", KindMaster},
	0xBB:       {"CuePoint", KindMaster},
	0xB3:       {"CueTime", KindUInt},
	0xB7:       {"CueTrackPositions", KindMaster},
	0xF7:       {"CueTrack", KindUInt},
	0xF1:       {"CueClusterPosition", KindUInt},

	0x1F43B675: {"Cluster", KindMaster},
	0xE7:       {"Timecode", KindUInt},
	0xA3:       {"SimpleBlock", KindBinary},
	0xA0:       {"BlockGroup", KindMaster},
	0xA1:       {"Block", KindBinary},
	0x9B:       {"BlockDuration", KindUInt},
}

func lookup(id ID) registryEntry {
	if e, ok := registry[id]; ok {
		return e
	}
	return unknownEntry
}

// Well-known ids the higher layers (webm package) switch on directly.
const (
	IDSegment            ID = 0x18538067
	IDSeekHead           ID = 0x114D9B74
	IDSeek               ID = 0x4DBB
	IDSeekID             ID = 0x53AB
	IDSeekPosition       ID = 0x53AC
	IDInfo               ID = 0x1549A966
	IDTimecodeScale      ID = 0x2AD7B1
	IDDuration           ID = 0x4489
	IDTracks             ID = 0x1654AE6B
	IDTrackEntry         ID = 0xAE
	IDTrackNumber        ID = 0xD7
	IDCodecID            ID = 0x86
	IDAudio              ID = 0xE1
	IDSamplingFrequency  ID = 0xB5
	IDChannels           ID = 0x9F
	IDCues               ID = 0x1C53BB6B
	IDCuePoint           ID = 0xBB
	IDCueTime            ID = 0xB3
	IDCueTrackPositions  ID = 0xB7
	IDCueClusterPosition ID = 0xF1
	IDCluster            ID = 0x1F43B675
	IDTimecode           ID = 0xE7
	IDSimpleBlock        ID = 0xA3
	IDBlockGroup         ID = 0xA0
	IDBlock              ID = 0xA1
	IDCueTrack           ID = 0xF7
)
