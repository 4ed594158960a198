package reqctx

import "testing"

const contextTestPrefix = "reqctx:context_test"

func TestNew_Defaults(t *testing.T) {
	c := New()
	if c.ResponseStatus() != 200 {
		t.Errorf("%s - ResponseStatus = %d, want 200", contextTestPrefix, c.ResponseStatus())
	}
	if c.ContentType() != "text/html" {
		t.Errorf("%s - ContentType = %q, want text/html", contextTestPrefix, c.ContentType())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := New()
	c.SetRequest("POST", "10.0.0.1", "curl/8.0")
	c.SetArea("admin")
	c.SetURI("/admin/users", false)
	c.SetUserID(7)

	s := c.Snapshot()
	want := Snapshot{Area: "admin", URI: "/admin/users", Method: "POST", UserID: 7, IP: "10.0.0.1", UserAgent: "curl/8.0"}
	if s != want {
		t.Fatalf("%s - Snapshot = %+v, want %+v", contextTestPrefix, s, want)
	}

	rebuilt := FromSnapshot(s)
	if rebuilt.Snapshot() != want {
		t.Errorf("%s - FromSnapshot().Snapshot() = %+v, want %+v", contextTestPrefix, rebuilt.Snapshot(), want)
	}
}

func TestMutationsNotRecordedOutsideSegment(t *testing.T) {
	c := New()
	c.SetArea("public")

	stop := c.Record()
	got := stop()
	if len(got) != 0 {
		t.Errorf("%s - expected empty segment, got %d mutations", contextTestPrefix, len(got))
	}
}

func TestRecord_Nested(t *testing.T) {
	c := New()
	outer := c.Record()
	c.SetArea("admin")

	inner := c.Record()
	c.SetTheme("atlas")
	innerLog := inner()

	c.SetUserID(3)
	outerLog := outer()

	if len(innerLog) != 1 || innerLog[0].Action != ActionSetTheme {
		t.Errorf("%s - inner segment = %+v, want [set_theme]", contextTestPrefix, innerLog)
	}
	if len(outerLog) != 3 {
		t.Fatalf("%s - outer segment has %d mutations, want 3", contextTestPrefix, len(outerLog))
	}
	wantOrder := []Action{ActionSetArea, ActionSetTheme, ActionSetUserID}
	for i, a := range wantOrder {
		if outerLog[i].Action != a {
			t.Errorf("%s - outer[%d] = %s, want %s", contextTestPrefix, i, outerLog[i].Action, a)
		}
	}

	// A finished outermost segment clears the log.
	again := c.Record()
	if got := again(); len(got) != 0 {
		t.Errorf("%s - expected log cleared after outermost stop, got %d", contextTestPrefix, len(got))
	}
}

func TestRecord_StopIsIdempotent(t *testing.T) {
	c := New()
	stop := c.Record()
	c.SetArea("admin")
	first := stop()
	second := stop()
	if len(first) != 1 || len(second) != 1 {
		t.Errorf("%s - stop() results = %d, %d; want 1, 1", contextTestPrefix, len(first), len(second))
	}
}

func TestNewMutation_Encoding(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		args   []any
		want   string
	}{
		{"scalar", ActionSetArea, []any{"admin"}, `"admin"`},
		{"int scalar", ActionSetResStatus, []any{404}, `404`},
		{"array", ActionSetCookie, []any{"sid", "abc", 3600, "/"}, `["sid","abc",3600,"/"]`},
		{"uri with flag", ActionSetURI, []any{"/x", true}, `["/x",true]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMutation(tt.action, tt.args...)
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", contextTestPrefix, err)
			}
			if string(m.Data) != tt.want {
				t.Errorf("%s - Data = %s, want %s", contextTestPrefix, m.Data, tt.want)
			}
		})
	}
}

func TestNewMutation_Unencodable(t *testing.T) {
	if _, err := NewMutation(ActionViewAssign, "ch", make(chan int)); err == nil {
		t.Errorf("%s - expected error for channel value", contextTestPrefix)
	}
}
