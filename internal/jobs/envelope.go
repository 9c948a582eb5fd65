package jobs

import (
	"encoding/json"
	"fmt"
)

// The wire protocol wraps the real payload in a JSON field whose value is
// itself JSON-encoded text. Both backends speak the same envelope, only
// the URL layout differs.

type submitBody struct {
	Targets []string `json:"targets"`
	JobName string   `json:"jobName"`
	Options string   `json:"options"`
}

// The relay names the identifier jobID, the controller firmware uses id.
type submitResponse struct {
	JobID string `json:"jobID"`
	ID    string `json:"id"`
}

func decodeSubmitBody(target string, body []byte) (Handle, error) {
	var sr submitResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", &SubmissionError{Target: target, Reason: fmt.Sprintf("malformed submit response: %v", err)}
	}
	id := sr.JobID
	if id == "" {
		id = sr.ID
	}
	if id == "" {
		return "", &SubmissionError{Target: target, Reason: "no job identifier in response"}
	}
	return Handle(id), nil
}

type launchRecord struct {
	Xname         string `json:"xname"`
	LaunchMessage string `json:"launchMessage"`
}

type launchCollection struct {
	Tasks []launchRecord `json:"tasks"`
}

type launchInner struct {
	State   string `json:"state"`
	Message string `json:"message"`
}

func decodeLaunchBody(op, target string, body []byte) (LaunchDecision, error) {
	var col launchCollection
	if err := json.Unmarshal(body, &col); err != nil {
		return LaunchDecision{}, &ProtocolError{Op: op, Reason: "malformed launch status body", Err: err}
	}

	for _, rec := range col.Tasks {
		if rec.Xname != target {
			continue
		}
		if rec.LaunchMessage == "" {
			// no launch decision yet
			return LaunchDecision{Raw: body}, nil
		}
		var inner launchInner
		if err := json.Unmarshal([]byte(rec.LaunchMessage), &inner); err != nil {
			return LaunchDecision{}, &ProtocolError{Op: op, Reason: "malformed launchMessage envelope", Err: err}
		}
		ok := inner.State != "Error" && inner.State != "Exception"
		return LaunchDecision{
			Decided: true,
			OK:      ok,
			State:   inner.State,
			Message: inner.Message,
			Raw:     body,
		}, nil
	}

	// target not listed yet, same as an absent launchMessage
	return LaunchDecision{Raw: body}, nil
}

type runOuter struct {
	Message string `json:"message"`
}

type runInner struct {
	State              string   `json:"state"`
	StartTime          string   `json:"startTime"`
	EndTime            string   `json:"endTime"`
	DiagnosticMessages []string `json:"diagnosticMessages"`
}

func decodeRunBody(op string, body []byte) (RunStatus, error) {
	var outer runOuter
	if err := json.Unmarshal(body, &outer); err != nil {
		return RunStatus{}, &ProtocolError{Op: op, Reason: "malformed run status body", Err: err}
	}
	if outer.Message == "" {
		return RunStatus{}, &ProtocolError{Op: op, Reason: "missing message field"}
	}
	var inner runInner
	if err := json.Unmarshal([]byte(outer.Message), &inner); err != nil {
		return RunStatus{}, &ProtocolError{Op: op, Reason: "malformed message envelope", Err: err}
	}
	if inner.State == "" {
		return RunStatus{}, &ProtocolError{Op: op, Reason: "message envelope has no state"}
	}
	return RunStatus{
		State:     inner.State,
		StartTime: inner.StartTime,
		EndTime:   inner.EndTime,
		Messages:  inner.DiagnosticMessages,
		Raw:       body,
	}, nil
}
