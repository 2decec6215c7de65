// CLAUDE:SUMMARY Per-page CDP observers feeding the session ring buffers: console, exceptions, network, dialogs, file chooser.
package host

import (
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// ConsoleEntry is one console API call.
type ConsoleEntry struct {
	Type string `json:"type"`
	Text string `json:"text"`
	At   int64  `json:"at"` // unix ms
}

// PageError is one uncaught page exception.
type PageError struct {
	Message string `json:"message"`
	At      int64  `json:"at"`
}

// RequestEntry is one network exchange. Status 0 means no response seen.
type RequestEntry struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
	URL       string `json:"url"`
	Status    int    `json:"status"`
	Type      string `json:"type"`
	At        int64  `json:"at"`
}

// DialogEntry records a JavaScript dialog and how it was handled.
type DialogEntry struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Accepted bool   `json:"accepted"`
	Note     string `json:"note,omitempty"`
	At       int64  `json:"at"`
}

// bindObservers wires the page's CDP events into the session rings and the
// dialog/file-chooser arming state. One goroutine per page; it exits with
// the page. Callers hold s.mu.
func (s *Session) bindObservers(page *rod.Page) {
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		s.svc.logger.Debug("host: network enable failed", "session", s.ID, "error", err)
	}

	// Requests are keyed by CDP request id so the response event can
	// complete the entry written at request time.
	pending := make(map[proto.NetworkRequestID]int64)

	go page.EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			s.console.Push(ConsoleEntry{
				Type: string(e.Type),
				Text: consoleText(e),
				At:   time.Now().UnixMilli(),
			})
		},
		func(e *proto.RuntimeExceptionThrown) {
			msg := e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				msg = e.ExceptionDetails.Exception.Description
			}
			s.pageErrs.Push(PageError{Message: msg, At: time.Now().UnixMilli()})
		},
		func(e *proto.NetworkRequestWillBeSent) {
			pending[e.RequestID] = time.Now().UnixMilli()
		},
		func(e *proto.NetworkResponseReceived) {
			at, ok := pending[e.RequestID]
			if !ok {
				at = time.Now().UnixMilli()
			}
			delete(pending, e.RequestID)
			s.requests.Push(RequestEntry{
				RequestID: string(e.RequestID),
				Method:    "", // CDP reports the method on the request event only
				URL:       e.Response.URL,
				Status:    e.Response.Status,
				Type:      string(e.Type),
				At:        at,
			})
		},
		func(e *proto.PageJavascriptDialogOpening) {
			s.handleDialog(page, e)
		},
		func(e *proto.PageFileChooserOpened) {
			s.handleFileChooser(page, e)
		},
	)()
}

// handleDialog resolves a JavaScript dialog per the session's arming state.
// Unarmed dialogs are dismissed so they never wedge the single-writer loop.
// Handler errors land in the dialog ring, never in the caller.
func (s *Session) handleDialog(page *rod.Page, e *proto.PageJavascriptDialogOpening) {
	armed, armedAccept, text := s.armedDialog()
	accept := armed && armedAccept
	entry := DialogEntry{
		Kind:     string(e.Type),
		Message:  e.Message,
		Accepted: accept,
		At:       time.Now().UnixMilli(),
	}
	err := proto.PageHandleJavaScriptDialog{
		Accept:     accept,
		PromptText: text,
	}.Call(page)
	if err != nil {
		entry.Note = "handle failed: " + err.Error()
	}
	s.dialogs.Push(entry)
}

// handleFileChooser feeds armed file paths into an intercepted chooser.
func (s *Session) handleFileChooser(page *rod.Page, e *proto.PageFileChooserOpened) {
	files := s.armedChooser()
	if len(files) == 0 {
		s.dialogs.Push(DialogEntry{
			Kind: "filechooser", Note: "opened with no armed files",
			At: time.Now().UnixMilli(),
		})
		return
	}
	err := proto.DOMSetFileInputFiles{
		Files:         files,
		BackendNodeID: e.BackendNodeID,
	}.Call(page)
	entry := DialogEntry{
		Kind:     "filechooser",
		Accepted: err == nil,
		At:       time.Now().UnixMilli(),
	}
	if err != nil {
		entry.Note = "set files failed: " + err.Error()
	}
	s.dialogs.Push(entry)
}

func consoleText(e *proto.RuntimeConsoleAPICalled) string {
	parts := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		switch {
		case a.Value.Val() != nil:
			parts = append(parts, a.Value.String())
		case a.Description != "":
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

// responseBody fetches the body of one recorded exchange. Callers hold s.mu.
func (s *Session) responseBody(requestID string) (body string, base64 bool, err error) {
	page, err := s.currentPage()
	if err != nil {
		return "", false, err
	}
	res, err := proto.NetworkGetResponseBody{
		RequestID: proto.NetworkRequestID(requestID),
	}.Call(page)
	if err != nil {
		return "", false, err
	}
	return res.Body, res.Base64Encoded, nil
}
