package telephony

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

// VoiceName is the TTS voice used for every spoken line.
const VoiceName = "Polly.Joanna"

// TwiML document model, enough for the intake dialogue: speak, gather
// speech, pause, redirect, hang up. Twilio expects Content-Type: text/xml.
type TwiML struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",omitempty"`
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type Gather struct {
	XMLName xml.Name `xml:"Gather"`
	Input   string   `xml:"input,attr"`
	Timeout int      `xml:"timeout,attr"`
	Action  string   `xml:"action,attr"`
	Method  string   `xml:"method,attr"`
	Say     *Say     `xml:"Say,omitempty"`
}

type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// NewTwiML returns an empty response document; with no verbs it renders as
// the bare acknowledgment the status webhook answers with.
func NewTwiML() *TwiML {
	return &TwiML{}
}

// SaySpeak appends a spoken line in the standard voice.
func (t *TwiML) SaySpeak(text string) *TwiML {
	t.Verbs = append(t.Verbs, Say{Voice: VoiceName, Text: text})
	return t
}

// GatherSpeech appends a prompt-and-listen instruction: speak the prompt,
// collect speech for timeout seconds, then POST the result to action.
func (t *TwiML) GatherSpeech(prompt, action string, timeoutSeconds int) *TwiML {
	t.Verbs = append(t.Verbs, Gather{
		Input:   "speech",
		Timeout: timeoutSeconds,
		Action:  action,
		Method:  http.MethodPost,
		Say:     &Say{Voice: VoiceName, Text: prompt},
	})
	return t
}

// PauseFor appends a pause of the given number of seconds.
func (t *TwiML) PauseFor(seconds int) *TwiML {
	t.Verbs = append(t.Verbs, Pause{Length: seconds})
	return t
}

// RedirectTo appends a redirect. Placed after a Gather it acts as the
// timeout fallback: the provider re-fetches the URL and the step repeats.
func (t *TwiML) RedirectTo(url string) *TwiML {
	t.Verbs = append(t.Verbs, Redirect{URL: url})
	return t
}

// EndCall appends a hangup.
func (t *TwiML) EndCall() *TwiML {
	t.Verbs = append(t.Verbs, Hangup{})
	return t
}

// Render marshals the document with the XML header.
func (t *TwiML) Render() ([]byte, error) {
	out, err := xml.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("telephony: marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// WriteTwiML renders the document onto an HTTP response. Rendering this
// model cannot realistically fail, but if it somehow does the provider
// still gets a valid (empty) document rather than a broken call.
func WriteTwiML(w http.ResponseWriter, t *TwiML) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	out, err := t.Render()
	if err != nil {
		out = []byte(xml.Header + "<Response></Response>")
	}
	_, _ = w.Write(out)
}
