package job

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"watch-harvest/pkg/models"
)

// Stage is a job's position in the per-URL state machine.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageRendering  Stage = "rendering"
	StageExtracting Stage = "extracting"
	StageUpserting  Stage = "upserting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ErrorKind classifies a job failure for logs and metrics.
type ErrorKind string

const (
	KindNavigation ErrorKind = "navigation"
	KindExtraction ErrorKind = "extraction"
	KindDownload   ErrorKind = "download"
	KindUpload     ErrorKind = "upload"
	KindInternal   ErrorKind = "internal"
)

// Classify maps an error to its kind.
func Classify(err error) ErrorKind {
	var (
		nav *models.NavigationError
		ext *models.ExtractionError
		dl  *models.DownloadError
		up  *models.UploadError
	)
	switch {
	case errors.As(err, &nav):
		return KindNavigation
	case errors.As(err, &ext):
		return KindExtraction
	case errors.As(err, &dl):
		return KindDownload
	case errors.As(err, &up):
		return KindUpload
	}
	return KindInternal
}

// Result is what a job reports back for one URL.
type Result struct {
	URL             string                `json:"url"`
	Record          *models.ProductRecord `json:"record,omitempty"`
	ReferenceSource string                `json:"referenceSource,omitempty"`
	Confirmed       bool                  `json:"confirmed"`
	Warnings        []string              `json:"warnings,omitempty"`
	Stage           Stage                 `json:"stage"`
	Error           string                `json:"error,omitempty"`
	ErrorKind       ErrorKind             `json:"errorKind,omitempty"`
	DebugDir        string                `json:"debugDir,omitempty"`
}

func (r Result) OK() bool { return r.Error == "" && r.Record != nil }

// Failed builds the result of a job that stopped at stage.
func Failed(url string, stage Stage, err error) Result {
	return Result{URL: url, Stage: stage, Error: err.Error(), ErrorKind: Classify(err)}
}

// Event is one line of the job protocol: stage changes followed by exactly
// one result.
type Event struct {
	Type   string  `json:"type"`
	Stage  Stage   `json:"stage,omitempty"`
	Result *Result `json:"result,omitempty"`
}

const (
	eventStage  = "stage"
	eventResult = "result"
)

// Encoder writes protocol events as JSON lines.
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) Stage(s Stage) error {
	return e.enc.Encode(Event{Type: eventStage, Stage: s})
}

func (e *Encoder) Result(r Result) error {
	return e.enc.Encode(Event{Type: eventResult, Result: &r})
}

// ErrNoResult means the job exited without reporting a result.
var ErrNoResult = errors.New("job ended without a result")

// Decode reads events until the result, calling onStage for every stage
// event. Lines that are not protocol events are ignored.
func Decode(r io.Reader, onStage func(Stage)) (Result, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 32<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case eventStage:
			if onStage != nil {
				onStage(ev.Stage)
			}
		case eventResult:
			if ev.Result == nil {
				return Result{}, fmt.Errorf("empty result event")
			}
			return *ev.Result, nil
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}
	return Result{}, ErrNoResult
}
