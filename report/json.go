package report

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/dbtestlabs/shoal/types"
)

// Result is the serialized form of one test outcome.
type Result struct {
	TestFile   string  `json:"test_file"`
	Status     string  `json:"status"`
	ExitCode   int     `json:"exit_code"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	ElapsedSec float64 `json:"elapsed"`
	URL        string  `json:"url,omitempty"`
}

// Results is the serialized form of an Info, suitable for writing to a
// report file and merging across harness invocations.
type Results struct {
	Results  []Result `json:"results"`
	Failures int      `json:"failures"`
}

// AsDict converts the Info to its serializable form.
func (i *Info) AsDict() Results {
	out := Results{
		Results:  make([]Result, 0, len(i.testInfos)),
		Failures: i.NumFailed + i.NumErrored + i.NumInterrupted,
	}
	for _, info := range i.testInfos {
		res := Result{
			TestFile: info.TestID,
			Status:   info.ExternalStatus,
			ExitCode: info.ReturnCode,
			Start:    toEpoch(info.StartTime),
			URL:      info.LogPath,
		}
		if info.Stopped() {
			res.End = toEpoch(info.EndTime)
			res.ElapsedSec = info.EndTime.Sub(info.StartTime).Seconds()
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// FromDict reconstructs an Info from its serializable form. A test whose id
// contains a ':' separator is a dynamic test synthesized by a hook.
func FromDict(r Results) *Info {
	info := NewInfo()
	for _, res := range r.Results {
		ti := &TestInfo{
			TestID:         res.TestFile,
			Dynamic:        strings.Contains(res.TestFile, ":"),
			StartTime:      fromEpoch(res.Start),
			EndTime:        fromEpoch(res.End),
			ExternalStatus: res.Status,
			ReturnCode:     res.ExitCode,
			LogPath:        res.URL,
		}
		switch {
		case res.Status == types.ExternalStatusPass:
			ti.Status = types.TestStatusPass
		case res.ExitCode == types.ReturnCodeTimeout:
			ti.Status = types.TestStatusTimeout
		case res.Status == types.ExternalStatusSilentFail:
			ti.Status = types.TestStatusFail
		default:
			ti.Status = types.TestStatusFail
		}
		info.testInfos = append(info.testInfos, ti)
		if ti.Dynamic {
			info.NumDynamic++
		}
	}
	info.recomputeCounts()
	return info
}

// MarshalJSON serializes the Info through its Results form.
func (i *Info) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.AsDict())
}

// UnmarshalJSON deserializes the Info from its Results form.
func (i *Info) UnmarshalJSON(data []byte) error {
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*i = *FromDict(r)
	return nil
}

func toEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	s, frac := math.Modf(sec)
	return time.Unix(int64(s), int64(frac*float64(time.Second)))
}
