package configuration

import (
	"strings"

	operations "github.com/goliatone/go-operations"
)

const (
	StatusInit        = operations.StatusInit
	StatusScheduled   = "scheduled"
	StatusDownloading = "downloading"
	StatusDownloaded  = "downloaded"
	StatusInstalling  = "installing"
	StatusSuccessful  = operations.StatusSuccessful
	StatusFailed      = operations.StatusFailed
)

// Request is what a configuration update asks for.
type Request struct {
	Target  string `json:"target"`
	SrcURL  string `json:"src_url"`
	SHA256  string `json:"sha256,omitempty"`
	TmpPath string `json:"tmp_path,omitempty"`
}

// Header is carried by every state.
type Header struct {
	Key     operations.OperationKey
	Request Request
}

func (h Header) header() Header { return h }

// State is one step of a configuration update. The set of variants is
// closed: Init, Scheduled, Downloading, Downloaded, Installing, Successful
// and Failed.
type State interface {
	Status() string
	header() Header
}

type Init struct{ Header }
type Scheduled struct{ Header }
type Successful struct{ Header }

type Downloading struct {
	Header
	Path string
}

type Downloaded struct {
	Header
	Path string
}

type Installing struct {
	Header
	Path string
}

type Failed struct {
	Header
	Reason string
}

func (Init) Status() string        { return StatusInit }
func (Scheduled) Status() string   { return StatusScheduled }
func (Downloading) Status() string { return StatusDownloading }
func (Downloaded) Status() string  { return StatusDownloaded }
func (Installing) Status() string  { return StatusInstalling }
func (Successful) Status() string  { return StatusSuccessful }
func (Failed) Status() string      { return StatusFailed }

// ID is the operation instance the state belongs to.
func ID(s State) string {
	return s.header().Key.Instance
}

// Key identifies the operation instance s belongs to.
func Key(s State) operations.OperationKey {
	return s.header().Key
}

func RequestOf(s State) Request {
	return s.header().Request
}

// Path is the downloaded file; only set while downloading, downloaded and installing.
func Path(s State) (string, bool) {
	switch v := s.(type) {
	case Downloading:
		return v.Path, true
	case Downloaded:
		return v.Path, true
	case Installing:
		return v.Path, true
	}
	return "", false
}

// Reason explains a failure; only set on Failed.
func Reason(s State) (string, bool) {
	if v, ok := s.(Failed); ok {
		return v.Reason, true
	}
	return "", false
}

// Terminal reports whether no further step follows s.
func Terminal(s State) bool {
	switch s.(type) {
	case Successful, Failed:
		return true
	}
	return false
}

// Fail moves any state to Failed, keeping its header.
func Fail(s State, reason string) Failed {
	return Failed{Header: s.header(), Reason: reason}
}

// FromMessage decodes a snapshot into its state. When the request is
// incomplete the decoded state is returned along with the error so the
// caller can fail it.
func FromMessage(msg operations.Message) (State, error) {
	h := Header{Key: msg.Key, Request: requestFrom(msg)}
	path, _ := msg.String("path")
	reason, _ := msg.String(operations.ReasonField)

	var s State
	switch msg.Status {
	case StatusInit:
		s = Init{h}
	case StatusScheduled:
		s = Scheduled{h}
	case StatusDownloading:
		s = Downloading{Header: h, Path: path}
	case StatusDownloaded:
		s = Downloaded{Header: h, Path: path}
	case StatusInstalling:
		s = Installing{Header: h, Path: path}
	case StatusSuccessful:
		return Successful{h}, nil
	case StatusFailed:
		return Failed{Header: h, Reason: reason}, nil
	default:
		return nil, operations.NewError(operations.ErrIllegalTransition, "unknown configuration status "+msg.Status, nil, map[string]any{
			"key":    msg.Key.String(),
			"status": msg.Status,
		})
	}

	if err := validate(s); err != nil {
		return s, err
	}
	return s, nil
}

func validate(s State) error {
	var missing []string
	req := RequestOf(s)
	if strings.TrimSpace(req.Target) == "" {
		missing = append(missing, "target")
	}
	if strings.TrimSpace(req.SrcURL) == "" {
		missing = append(missing, "src_url")
	}
	if p, ok := Path(s); ok && p == "" {
		missing = append(missing, "path")
	}
	if len(missing) == 0 {
		return nil
	}
	return operations.NewError(operations.ErrInvalidPayload, "Invalid configuration request: missing "+strings.Join(missing, ", "), nil, map[string]any{
		"key": Key(s).String(),
	})
}

func requestFrom(msg operations.Message) Request {
	var r Request
	r.Target, _ = msg.String("target")
	r.SrcURL, _ = msg.String("src_url")
	r.SHA256, _ = msg.String("sha256")
	r.TmpPath, _ = msg.String("tmp_path")
	return r
}

// ToMessage encodes a state as a snapshot.
func ToMessage(s State) operations.Message {
	h := s.header()
	msg := operations.NewMessage(h.Key, s.Status()).
		Set("target", h.Request.Target).
		Set("src_url", h.Request.SrcURL)
	if h.Request.SHA256 != "" {
		msg = msg.Set("sha256", h.Request.SHA256)
	}
	if h.Request.TmpPath != "" {
		msg = msg.Set("tmp_path", h.Request.TmpPath)
	}
	if p, ok := Path(s); ok {
		msg = msg.Set("path", p)
	}
	if r, ok := Reason(s); ok {
		msg = msg.Set(operations.ReasonField, r)
	}
	return msg
}
