package feed

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// railroadExtensionField is the StopTimeUpdate extension number used by the
// LIRR and Metro-North feeds. The bindings do not compile it in, so it stays
// in the unknown field set after unmarshalling.
const railroadExtensionField protowire.Number = 1005

type railroadStop struct {
	Track       string
	TrainStatus string
}

// railroadStopTimeUpdate scans raw unknown bytes for the railroad extension.
// Malformed bytes are ignored; the extension is optional display data.
func railroadStopTimeUpdate(unknown []byte) (railroadStop, bool) {
	var out railroadStop
	found := false
	for len(unknown) > 0 {
		num, typ, n := protowire.ConsumeTag(unknown)
		if n < 0 {
			return out, found
		}
		unknown = unknown[n:]

		if num == railroadExtensionField && typ == protowire.BytesType {
			inner, m := protowire.ConsumeBytes(unknown)
			if m < 0 {
				return out, found
			}
			unknown = unknown[m:]
			if parseRailroadStop(inner, &out) {
				found = true
			}
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, unknown)
		if m < 0 {
			return out, found
		}
		unknown = unknown[m:]
	}
	return out, found
}

func parseRailroadStop(b []byte, out *railroadStop) bool {
	ok := false
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ok
		}
		b = b[n:]
		if typ == protowire.BytesType && (num == 1 || num == 2) {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return ok
			}
			b = b[m:]
			if num == 1 {
				out.Track = string(v)
			} else {
				out.TrainStatus = string(v)
			}
			ok = true
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return ok
		}
		b = b[m:]
	}
	return ok
}
