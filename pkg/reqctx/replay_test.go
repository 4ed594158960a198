package reqctx

import (
	"encoding/json"
	"testing"
)

const replayTestPrefix = "reqctx:replay_test"

func TestReplay_AreaAndCookie(t *testing.T) {
	log := []Mutation{
		{Action: ActionSetArea, Data: json.RawMessage(`"admin"`)},
		{Action: ActionSetCookie, Data: json.RawMessage(`["sid","abc",3600,"/"]`)},
	}

	c := New()
	if err := Replay(c, log); err != nil {
		t.Fatalf("%s - unexpected error: %v", replayTestPrefix, err)
	}

	if c.Area() != "admin" {
		t.Errorf("%s - Area = %q, want %q", replayTestPrefix, c.Area(), "admin")
	}
	ck, ok := c.Cookie("sid")
	if !ok {
		t.Fatalf("%s - expected cookie sid", replayTestPrefix)
	}
	if ck.Value != "abc" || ck.TTL != 3600 || ck.Path != "/" {
		t.Errorf("%s - cookie = %+v, want sid=abc ttl=3600 path=/", replayTestPrefix, ck)
	}
}

func TestReplay_RecordedLogReproducesState(t *testing.T) {
	src := New()
	stop := src.Record()
	src.SetArea("members")
	src.SetTheme("atlas")
	src.SetURI("/members/index", true)
	src.SetUserID(42)
	src.SetCookie("remember", "yes", 86400, "/members")
	src.SetResponseStatus(302)
	src.SetContentType("application/json")
	src.SetHeader("Location", "/members/index")
	src.Assign("greeting", "hello")
	src.AddCallout("Saved", "success")
	log := stop()

	if len(log) != 10 {
		t.Fatalf("%s - recorded %d mutations, want 10", replayTestPrefix, len(log))
	}

	dst := New()
	if err := Replay(dst, log); err != nil {
		t.Fatalf("%s - unexpected error: %v", replayTestPrefix, err)
	}

	if dst.Area() != "members" || dst.Theme() != "atlas" {
		t.Errorf("%s - area/theme = %q/%q", replayTestPrefix, dst.Area(), dst.Theme())
	}
	if dst.URI() != "/members/index" || !dst.URILocked() {
		t.Errorf("%s - uri = %q locked=%v", replayTestPrefix, dst.URI(), dst.URILocked())
	}
	if dst.UserID() != 42 {
		t.Errorf("%s - UserID = %d, want 42", replayTestPrefix, dst.UserID())
	}
	if ck, _ := dst.Cookie("remember"); ck.TTL != 86400 || ck.Path != "/members" {
		t.Errorf("%s - cookie = %+v", replayTestPrefix, ck)
	}
	if dst.ResponseStatus() != 302 {
		t.Errorf("%s - ResponseStatus = %d, want 302", replayTestPrefix, dst.ResponseStatus())
	}
	if dst.ContentType() != "application/json" {
		t.Errorf("%s - ContentType = %q", replayTestPrefix, dst.ContentType())
	}
	if dst.Header("Location") != "/members/index" {
		t.Errorf("%s - Location = %q", replayTestPrefix, dst.Header("Location"))
	}
	if v, _ := dst.Var("greeting"); v != "hello" {
		t.Errorf("%s - greeting = %v", replayTestPrefix, v)
	}
	callouts := dst.Callouts()
	if len(callouts) != 1 || callouts[0].Message != "Saved" || callouts[0].Type != "success" {
		t.Errorf("%s - callouts = %+v", replayTestPrefix, callouts)
	}
}

func TestReplay_UnknownActionSkipped(t *testing.T) {
	c := New()
	log := []Mutation{
		{Action: "set_locale", Data: json.RawMessage(`"fr"`)},
		{Action: ActionSetTheme, Data: json.RawMessage(`"koala"`)},
	}
	if err := Replay(c, log); err != nil {
		t.Fatalf("%s - unexpected error: %v", replayTestPrefix, err)
	}
	if c.Theme() != "koala" {
		t.Errorf("%s - Theme = %q, want koala", replayTestPrefix, c.Theme())
	}
}

func TestReplay_MalformedData(t *testing.T) {
	tests := []struct {
		name string
		m    Mutation
	}{
		{"wrong scalar type", Mutation{Action: ActionSetUserID, Data: json.RawMessage(`"abc"`)}},
		{"short cookie args", Mutation{Action: ActionSetCookie, Data: json.RawMessage(`["sid","abc"]`)}},
		{"not an array", Mutation{Action: ActionSetResHeader, Data: json.RawMessage(`"X-Foo"`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Replay(New(), []Mutation{tt.m}); err == nil {
				t.Errorf("%s - expected error for %s", replayTestPrefix, tt.name)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	actions := []Action{
		ActionSetArea, ActionSetTheme, ActionSetURI, ActionSetUserID, ActionSetCookie,
		ActionSetResStatus, ActionSetResContentType, ActionSetResHeader, ActionViewAssign, ActionViewCallout,
	}
	for _, a := range actions {
		if !Supported(a) {
			t.Errorf("%s - action %q not supported", replayTestPrefix, a)
		}
	}
	if Supported("set_locale") {
		t.Errorf("%s - set_locale should not be supported", replayTestPrefix)
	}
}
