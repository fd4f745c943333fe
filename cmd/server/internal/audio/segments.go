package audio

import "github.com/diegors10/projetoAPIs/cmd/server/internal/dependency"

// Segment is one diarized turn: Speaker talks from Start to End seconds.
type Segment = dependency.SpeakerTurn

// SpeakerSpans are the time ranges of one speaker, in turn order.
type SpeakerSpans struct {
	Speaker string
	Spans   []dependency.TimeSpan
}

// GroupBySpeaker collects segments per speaker. Speakers appear in order of
// their first turn and each speaker's spans keep the order the model emitted.
// Empty or inverted segments (End <= Start) are dropped.
func GroupBySpeaker(segments []Segment) []SpeakerSpans {
	index := make(map[string]int)
	var groups []SpeakerSpans

	for _, seg := range segments {
		if seg.End <= seg.Start {
			continue
		}
		i, ok := index[seg.Speaker]
		if !ok {
			i = len(groups)
			index[seg.Speaker] = i
			groups = append(groups, SpeakerSpans{Speaker: seg.Speaker})
		}
		groups[i].Spans = append(groups[i].Spans, dependency.TimeSpan{Start: seg.Start, End: seg.End})
	}
	return groups
}
