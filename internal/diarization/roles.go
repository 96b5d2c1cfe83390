package diarization

import (
	"fmt"
	"strings"
	"time"

	"github.com/ciricc/court-transcriber/internal/audio"
	"github.com/ciricc/court-transcriber/internal/model/segment"
)

const (
	RoleJudge     = "Judge"
	RolePlaintiff = "Advocate (Plaintiff)"
	RoleDefense   = "Advocate (Defense)"
	RoleWitness   = "Witness"
)

// syntheticRoles is the rotation used when no model output is available.
var syntheticRoles = []string{RoleJudge, RolePlaintiff, RoleDefense, RoleWitness}

const syntheticWindow = 10 * time.Second

// RoleForSpeaker maps a raw speaker label such as "SPEAKER_01" to a courtroom role
// by the suffix after the last underscore.
//
// This is a placeholder heuristic, not acoustic role classification: it assumes the
// model numbers speakers in the order judge, plaintiff, defense.
func RoleForSpeaker(label string) string {
	id := label
	if i := strings.LastIndex(label, "_"); i >= 0 {
		id = label[i+1:]
	}

	switch id {
	case "0":
		return RoleJudge
	case "1":
		return RolePlaintiff
	case "2":
		return RoleDefense
	default:
		return fmt.Sprintf("Speaker %s", id)
	}
}

// SyntheticTurns divides the buffer into 10 second windows, cycling through the four
// courtroom roles starting with the judge. A trailing partial window is dropped.
// If the duration is unknown three fixed 30 second turns are returned.
func SyntheticTurns(buf audio.Buffer) []segment.Turn {
	duration, ok := buf.Duration()
	if !ok {
		return []segment.Turn{
			{Start: 0, End: 30 * time.Second, Speaker: RoleJudge},
			{Start: 30 * time.Second, End: 60 * time.Second, Speaker: RolePlaintiff},
			{Start: 60 * time.Second, End: 90 * time.Second, Speaker: RoleDefense},
		}
	}

	count := int(duration / syntheticWindow)
	turns := make([]segment.Turn, 0, count)
	for i := range count {
		start := time.Duration(i) * syntheticWindow
		end := min(time.Duration(i+1)*syntheticWindow, duration)
		turns = append(turns, segment.Turn{
			Start:   start,
			End:     end,
			Speaker: syntheticRoles[i%len(syntheticRoles)],
		})
	}
	return turns
}
